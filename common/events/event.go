// Package events is the in-process pub/sub that decouples execution
// telemetry from its consumers. Delivery is synchronous with publication,
// at-most-once per subscription, and handler panics or errors never reach
// the publisher.
package events

import (
	"encoding/json"
	"time"
)

// Type identifies a lifecycle event
type Type string

const (
	Started            Type = "STARTED"
	ExecutionStarted   Type = "EXECUTION_STARTED"
	ExecutionCompleted Type = "EXECUTION_COMPLETED"
	ExecutionFailed    Type = "EXECUTION_FAILED"
	LLMLoaded          Type = "LLM_LOADED"
	ToolsLoaded        Type = "TOOLS_LOADED"
	RetrieverLoaded    Type = "RETRIEVER_LOADED"
	NodeExecuted       Type = "NODE_EXECUTED"
	ToolCalled         Type = "TOOL_CALLED"
	TokenUsage         Type = "TOKEN_USAGE"
	MessageSaved       Type = "MESSAGE_SAVED"
)

// Event is one immutable lifecycle notification. Consumers must tolerate
// additive Data fields.
type Event struct {
	Type           Type           `json:"type"`
	ExecutionID    string         `json:"execution_id"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data,omitempty"`
}

// New creates an event stamped with the current UTC instant
func New(t Type, executionID, userID, conversationID string, data map[string]any) Event {
	return Event{
		Type:           t,
		ExecutionID:    executionID,
		UserID:         userID,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Data:           data,
	}
}

// Marshal returns the event's JSON form for external relays
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
