package provider

import (
	"context"
	"sync"
)

// MockProvider is a scripted provider for tests and offline development.
// Replies are returned in order; the last reply repeats when the script
// runs out. Safe for concurrent use.
type MockProvider struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Request
}

// NewMockProvider creates a provider that always echoes a canned answer
func NewMockProvider(replies ...Reply) *MockProvider {
	if len(replies) == 0 {
		replies = []Reply{{
			Message: Message{Role: RoleAssistant, Content: "ok"},
			Usage:   TokenUsage{Prompt: 1, Completion: 1, Total: 2},
		}}
	}
	return &MockProvider{replies: replies}
}

// Invoke returns the next scripted reply
func (p *MockProvider) Invoke(ctx context.Context, req Request) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req)

	idx := len(p.calls) - 1
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	reply := p.replies[idx]
	return &reply, nil
}

// Calls returns the requests seen so far
func (p *MockProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.calls))
	copy(out, p.calls)
	return out
}
