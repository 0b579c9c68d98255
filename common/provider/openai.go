package provider

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aether-ai/conductor/common/config"
	"github.com/aether-ai/conductor/common/logger"
)

// OpenAIProvider adapts the OpenAI chat-completions API to ModelProvider.
// It also serves any OpenAI-compatible endpoint via BaseURL.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	log          *logger.Logger
}

// Per-1k-token pricing used for cost estimation. Unknown models report
// zero cost rather than guessing.
var modelPricing = map[string]struct{ prompt, completion float64 }{
	"gpt-4o":        {0.0025, 0.01},
	"gpt-4o-mini":   {0.00015, 0.0006},
	"gpt-4-turbo":   {0.01, 0.03},
	"gpt-3.5-turbo": {0.0005, 0.0015},
}

// NewOpenAIProvider creates a provider from service configuration
func NewOpenAIProvider(cfg *config.ProviderConfig, log *logger.Logger) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: cfg.DefaultModel,
		log:          log,
	}
}

// Invoke sends the conversation to the chat-completions endpoint
func (p *OpenAIProvider) Invoke(ctx context.Context, req Request) (*Reply, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(req.Temperature),
		Messages:    toChatMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toChatTools(req.Tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	usage := TokenUsage{
		Prompt:     resp.Usage.PromptTokens,
		Completion: resp.Usage.CompletionTokens,
		Total:      resp.Usage.TotalTokens,
	}

	reply := &Reply{
		Message: Message{
			Role:    RoleAssistant,
			Content: choice.Message.Content,
			Usage:   &usage,
		},
		Usage: usage,
		Cost:  estimateCost(model, usage),
	}

	for _, tc := range choice.Message.ToolCalls {
		reply.Message.ToolCalls = append(reply.Message.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	p.log.Debug("model invoked",
		"model", model,
		"prompt_tokens", usage.Prompt,
		"completion_tokens", usage.Completion,
		"tool_calls", len(reply.Message.ToolCalls),
	)

	return reply, nil
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toChatTools(bindings []ToolBinding) []openai.Tool {
	out := make([]openai.Tool, 0, len(bindings))
	for _, b := range bindings {
		params := b.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		raw, _ := json.Marshal(params)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        b.Name,
				Description: b.Description,
				Parameters:  json.RawMessage(raw),
			},
		})
	}
	return out
}

func estimateCost(model string, usage TokenUsage) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return float64(usage.Prompt)/1000*pricing.prompt +
		float64(usage.Completion)/1000*pricing.completion
}
