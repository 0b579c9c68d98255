// Package provider defines the model-provider contract the engine executes
// against, plus the message types threaded through executions. Adapters
// translate these types to a concrete SDK; the engine never imports an SDK
// directly.
package provider

import "context"

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-requested tool invocation
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// TokenUsage is the per-reply token accounting
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Message is one turn of a conversation
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Usage      *TokenUsage `json:"token_usage,omitempty"`
}

// ToolBinding advertises a callable tool to the model
type ToolBinding struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON schema
}

// Request is one model invocation
type Request struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []Message
	Tools       []ToolBinding
}

// Reply is the provider's answer plus accounting metadata
type Reply struct {
	Message Message
	Usage   TokenUsage
	Cost    float64
}

// ModelProvider turns a message list into a reply. Invoke must honor ctx
// cancellation; it is a suspension point of the execution.
type ModelProvider interface {
	Invoke(ctx context.Context, req Request) (*Reply, error)
}
