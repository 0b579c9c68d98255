package engine

import (
	"time"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/condition"
	"github.com/aether-ai/conductor/common/provider"
)

// LoopState tracks one loop node across re-entries
type LoopState struct {
	Iteration int       `json:"iteration"`
	StartedAt time.Time `json:"started_at"`
}

// HandlerState tracks an error_handler region. The region is identified
// by graph position: the handler node id keys the state, ResumeAt names
// the node the engine rewinds to on a retry.
type HandlerState struct {
	RetriesRemaining int    `json:"retries_remaining"`
	Attempts         int    `json:"attempts"`
	ResumeAt         string `json:"resume_at"`
	FallbackEdge     string `json:"fallback_edge,omitempty"`
	LastError        string `json:"last_error,omitempty"`

	// Conversation snapshot taken when the region armed; retries rewind
	// to it.
	MessageMark  int  `json:"message_mark"`
	HadToolCalls bool `json:"had_tool_calls"`
}

// HistoryEntry records one node execution
type HistoryEntry struct {
	NodeID    string    `json:"node_id"`
	EnteredAt time.Time `json:"entered_at"`
	ExitedAt  time.Time `json:"exited_at"`
	Outcome   string    `json:"outcome"` // success | error
}

// ExecutionContext is the state threaded through node executors. It is
// owned by exactly one execution task; executors mutate it directly and
// nothing else reads it until the result is assembled.
type ExecutionContext struct {
	ExecutionID    string
	UserID         string
	ConversationID string

	Messages            []provider.Message
	RetrievalContext    string
	ConversationSummary string
	ToolCallCount       int
	HasToolCalls        bool

	Variables          map[string]any
	LoopState          map[string]*LoopState
	ErrorState         map[string]*HandlerState
	ConditionalResults map[string]bool
	History            []HistoryEntry
	Metadata           map[string]any
	Errors             []string

	// ActiveHandlers is the stack of error_handler regions entered so
	// far, most recent last.
	ActiveHandlers []string
}

// NewContext allocates a context seeded with the effective capability
// variables so edge guards like "variable max_tool_calls" resolve even
// in graphs without a set-capabilities node.
func NewContext(executionID, userID, conversationID string, caps capability.Set) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID:        executionID,
		UserID:             userID,
		ConversationID:     conversationID,
		Variables:          caps.Variables(),
		LoopState:          make(map[string]*LoopState),
		ErrorState:         make(map[string]*HandlerState),
		ConditionalResults: make(map[string]bool),
		Metadata:           make(map[string]any),
	}
}

// Append adds a message to the conversation
func (ec *ExecutionContext) Append(msg provider.Message) {
	ec.Messages = append(ec.Messages, msg)
}

// LastUserContent returns the content of the most recent user message
func (ec *ExecutionContext) LastUserContent() string {
	for i := len(ec.Messages) - 1; i >= 0; i-- {
		if ec.Messages[i].Role == provider.RoleUser {
			return ec.Messages[i].Content
		}
	}
	return ""
}

// LastAssistant returns the most recent assistant message, or nil
func (ec *ExecutionContext) LastAssistant() *provider.Message {
	for i := len(ec.Messages) - 1; i >= 0; i-- {
		if ec.Messages[i].Role == provider.RoleAssistant {
			return &ec.Messages[i]
		}
	}
	return nil
}

// AddError records a failure into the context's error list
func (ec *ExecutionContext) AddError(msg string) {
	ec.Errors = append(ec.Errors, msg)
}

// ConditionEnv exposes the context to the guard language
func (ec *ExecutionContext) ConditionEnv() *condition.Env {
	return &condition.Env{
		Variables:     ec.Variables,
		ToolCallCount: ec.ToolCallCount,
		HasToolCalls:  ec.HasToolCalls,
	}
}

// AddUsage accumulates token usage into metadata.usage_metadata using
// the input/output spelling; totals are kept consistent.
func (ec *ExecutionContext) AddUsage(usage provider.TokenUsage, cost float64) {
	um, _ := ec.Metadata["usage_metadata"].(map[string]any)
	if um == nil {
		um = map[string]any{}
		ec.Metadata["usage_metadata"] = um
	}

	total := usage.Total
	if total == 0 {
		total = usage.Prompt + usage.Completion
	}

	um["input_tokens"] = metaInt(um, "input_tokens") + usage.Prompt
	um["output_tokens"] = metaInt(um, "output_tokens") + usage.Completion
	um["total_tokens"] = metaInt(um, "total_tokens") + total

	ec.Metadata["cost"] = metaFloat(ec.Metadata, "cost") + cost
}

// RecordHistory appends one execution-history entry
func (ec *ExecutionContext) RecordHistory(nodeID string, entered, exited time.Time, outcome string) {
	ec.History = append(ec.History, HistoryEntry{
		NodeID:    nodeID,
		EnteredAt: entered,
		ExitedAt:  exited,
		Outcome:   outcome,
	})
}

func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func metaFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
