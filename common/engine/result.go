package engine

import (
	"time"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/models"
	"github.com/aether-ai/conductor/common/provider"
)

// Result is the canonical execution output
type Result struct {
	ExecutionID    string `json:"execution_id"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	Response string             `json:"response"`
	Messages []provider.Message `json:"messages"`

	ExecutionTimeMS  int64   `json:"execution_time_ms"`
	TokensUsed       int     `json:"tokens_used"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
	ToolCalls        int     `json:"tool_calls"`

	Errors   []string       `json:"errors"`
	Metadata map[string]any `json:"metadata,omitempty"`

	Status       models.ExecutionStatus  `json:"status"`
	WorkflowType capability.WorkflowType `json:"workflow_type,omitempty"`
	DefinitionID string                  `json:"definition_id,omitempty"`
	TemplateID   string                  `json:"template_id,omitempty"`
}

// Assemble converts a terminal execution context into a result. Token
// counts come from metadata.usage_metadata, accepting both the
// input/output and prompt/completion spellings; the total is computed
// when absent.
func Assemble(ec *ExecutionContext, elapsed time.Duration, status models.ExecutionStatus, workflowType capability.WorkflowType, definitionID, templateID string) *Result {
	result := &Result{
		ExecutionID:    ec.ExecutionID,
		UserID:         ec.UserID,
		ConversationID: ec.ConversationID,
		Messages:       ec.Messages,
		ExecutionTimeMS: elapsed.Milliseconds(),
		ToolCalls:      ec.ToolCallCount,
		Errors:         ec.Errors,
		Metadata:       ec.Metadata,
		Status:         status,
		WorkflowType:   workflowType,
		DefinitionID:   definitionID,
		TemplateID:     templateID,
	}

	if assistant := ec.LastAssistant(); assistant != nil {
		result.Response = assistant.Content
	}

	if um, ok := ec.Metadata["usage_metadata"].(map[string]any); ok {
		result.PromptTokens = firstMetaInt(um, "input_tokens", "prompt_tokens")
		result.CompletionTokens = firstMetaInt(um, "output_tokens", "completion_tokens")
		result.TokensUsed = metaInt(um, "total_tokens")
		if result.TokensUsed == 0 {
			result.TokensUsed = result.PromptTokens + result.CompletionTokens
		}
	}
	result.Cost = metaFloat(ec.Metadata, "cost")

	return result
}

// APIResponse is the transport-facing projection of a result
type APIResponse struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	DefinitionID string     `json:"definition_id"`
	Status       string     `json:"status"`
	OutputData   OutputData `json:"output_data"`

	ExecutionTimeMS int64   `json:"execution_time_ms"`
	TokensUsed      int     `json:"tokens_used"`
	Cost            float64 `json:"cost"`

	ErrorMessage *string `json:"error_message"`
}

// OutputData carries the response payload
type OutputData struct {
	Response string         `json:"response"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// APIResponse maps the result to the wire shape. definition_id falls
// back to the template id when no stored definition was involved.
func (r *Result) APIResponse() APIResponse {
	definitionID := r.DefinitionID
	if definitionID == "" {
		definitionID = r.TemplateID
	}

	var errMsg *string
	if len(r.Errors) > 0 {
		errMsg = &r.Errors[0]
	}

	return APIResponse{
		ID:           r.ExecutionID,
		OwnerID:      r.UserID,
		DefinitionID: definitionID,
		Status:       string(r.Status),
		OutputData: OutputData{
			Response: r.Response,
			Metadata: r.Metadata,
		},
		ExecutionTimeMS: r.ExecutionTimeMS,
		TokensUsed:      r.TokensUsed,
		Cost:            r.Cost,
		ErrorMessage:    errMsg,
	}
}

// failedResult builds a result for failures that happen before the
// graph walk begins.
func failedResult(executionID string, req Request, templateID string, err error) *Result {
	return &Result{
		ExecutionID:    executionID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Errors:         []string{err.Error()},
		Status:         models.StatusFailed,
		DefinitionID:   req.DefinitionID,
		TemplateID:     templateID,
		Messages:       []provider.Message{},
	}
}

func firstMetaInt(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if v := metaInt(m, key); v != 0 {
			return v
		}
	}
	return 0
}
