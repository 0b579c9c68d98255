// Package tools defines the tool registry contract and an in-memory
// implementation. Tool execution is a suspension point: every call runs
// under a per-call timeout and honors context cancellation.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aether-ai/conductor/common/provider"
)

// Handler executes one tool call. Arguments arrive as the decoded JSON
// object the model produced.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a registered callable
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema for the arguments

	// BypassWhenUnavailable makes per-call failures non-fatal: the node
	// appends a synthetic error result instead of raising.
	BypassWhenUnavailable bool

	Handler Handler
}

// Registry resolves tool names to callables for a caller
type Registry interface {
	// Get returns the named tool or an error when unregistered
	Get(name string) (*Tool, error)
	// Names returns all registered tool names, sorted
	Names() []string
	// Bindings returns provider bindings for a subset of tools; an empty
	// subset means all registered tools.
	Bindings(subset []string) []provider.ToolBinding
}

// InMemoryRegistry is a mutex-guarded Registry
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewInMemoryRegistry creates an empty registry
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool
func (r *InMemoryRegistry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	return nil
}

// Get returns the named tool
func (r *InMemoryRegistry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not registered: %s", name)
	}
	return tool, nil
}

// Names returns all registered tool names, sorted
func (r *InMemoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bindings returns provider bindings for the given subset (or all tools)
func (r *InMemoryRegistry) Bindings(subset []string) []provider.ToolBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := subset
	if len(names) == 0 {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	bindings := make([]provider.ToolBinding, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			continue
		}
		bindings = append(bindings, provider.ToolBinding{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	return bindings
}

// Call runs a tool under a timeout. The result or error is returned as
// soon as the handler finishes or the deadline passes; a timed-out
// handler's goroutine is abandoned with its context cancelled.
func Call(ctx context.Context, tool *Tool, args map[string]any, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := tool.Handler(ctx, args)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return "", fmt.Errorf("tool %s: %w", tool.Name, ctx.Err())
	}
}
