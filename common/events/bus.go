package events

import (
	"context"
	"sync"

	"github.com/aether-ai/conductor/common/logger"
)

// Handler reacts to one event. Returned errors are logged, never
// propagated to the publisher.
type Handler func(ctx context.Context, event Event) error

// Subscription identifies a registered handler for later removal
type Subscription struct {
	id     int
	etype  Type
	global bool
}

type registration struct {
	id      int
	handler Handler
}

// Bus is the in-process event bus. Handler lists are read-mostly and
// guarded by a mutex on subscribe/unsubscribe; publication copies the
// slice so no lock is held across handler calls.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Type][]registration
	globals  []registration
	log      *logger.Logger
}

// NewBus creates a bus
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		log:      log,
	}
}

// Subscribe registers a handler for one event type
func (b *Bus) Subscribe(etype Type, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	reg := registration{id: b.nextID, handler: handler}
	b.handlers[etype] = append(b.handlers[etype], reg)
	return Subscription{id: reg.id, etype: etype}
}

// SubscribeAll registers a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	reg := registration{id: b.nextID, handler: handler}
	b.globals = append(b.globals, reg)
	return Subscription{id: reg.id, global: true}
}

// Unsubscribe removes a previously registered handler
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.global {
		b.globals = removeRegistration(b.globals, sub.id)
		return
	}
	b.handlers[sub.etype] = removeRegistration(b.handlers[sub.etype], sub.id)
}

// Publish delivers the event to type-specific handlers first, then global
// handlers, each group in registration order. Handler errors and panics
// are contained here.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	typed := make([]registration, len(b.handlers[event.Type]))
	copy(typed, b.handlers[event.Type])
	globals := make([]registration, len(b.globals))
	copy(globals, b.globals)
	b.mu.RUnlock()

	for _, reg := range typed {
		b.deliver(ctx, reg, event)
	}
	for _, reg := range globals {
		b.deliver(ctx, reg, event)
	}
}

func (b *Bus) deliver(ctx context.Context, reg registration, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				"event_type", event.Type,
				"execution_id", event.ExecutionID,
				"panic", r,
			)
		}
	}()

	if err := reg.handler(ctx, event); err != nil {
		b.log.Warn("event handler failed",
			"event_type", string(event.Type),
			"execution_id", event.ExecutionID,
			"error", err,
		)
	}
}

func removeRegistration(regs []registration, id int) []registration {
	for i, reg := range regs {
		if reg.id == id {
			return append(regs[:i:i], regs[i+1:]...)
		}
	}
	return regs
}

// Process-wide bus, lazily initialized. Tests use Reset to isolate state.
var (
	defaultMu  sync.Mutex
	defaultBus *Bus
)

// Default returns the process-wide bus, creating it on first use
func Default() *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBus == nil {
		defaultBus = NewBus(logger.New("info", "json"))
	}
	return defaultBus
}

// SetDefault replaces the process-wide bus. Service startup wires a bus
// built with the configured logger here before any publish.
func SetDefault(bus *Bus) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBus = bus
}

// Reset clears the process-wide bus; the next Default() recreates it
func Reset() {
	SetDefault(nil)
}
