package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/aether-ai/conductor/common/logger"
)

// LoggingSubscriber accumulates per-execution debug logs, capped per
// execution id, and exposes retrieval and clear operations.
type LoggingSubscriber struct {
	mu   sync.Mutex
	logs map[string][]string
	cap  int
	log  *logger.Logger
}

// NewLoggingSubscriber creates the subscriber; cap <= 0 defaults to 200
// entries per execution.
func NewLoggingSubscriber(cap int, log *logger.Logger) *LoggingSubscriber {
	if cap <= 0 {
		cap = 200
	}
	return &LoggingSubscriber{
		logs: make(map[string][]string),
		cap:  cap,
		log:  log,
	}
}

// Attach registers the subscriber on the bus as a global handler
func (s *LoggingSubscriber) Attach(bus *Bus) {
	bus.SubscribeAll(s.Handle)
}

// Handle appends a debug line for the event's execution
func (s *LoggingSubscriber) Handle(ctx context.Context, event Event) error {
	line := fmt.Sprintf("%s %s", event.Timestamp.Format("15:04:05.000"), event.Type)
	if nodeID, ok := event.Data["node_id"].(string); ok {
		line += " node=" + nodeID
	}
	if errMsg, ok := event.Data["error"].(string); ok {
		line += " error=" + errMsg
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.logs[event.ExecutionID]
	if len(entries) >= s.cap {
		return nil
	}
	s.logs[event.ExecutionID] = append(entries, line)

	s.log.Debug("workflow event",
		"execution_id", event.ExecutionID,
		"event_type", string(event.Type),
	)
	return nil
}

// Logs returns the accumulated lines for one execution
func (s *LoggingSubscriber) Logs(executionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.logs[executionID]
	out := make([]string, len(entries))
	copy(out, entries)
	return out
}

// Clear discards the lines for one execution
func (s *LoggingSubscriber) Clear(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, executionID)
}
