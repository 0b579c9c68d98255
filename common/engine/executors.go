package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/condition"
	"github.com/aether-ai/conductor/common/config"
	"github.com/aether-ai/conductor/common/events"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/logger"
	"github.com/aether-ai/conductor/common/provider"
	"github.com/aether-ai/conductor/common/retrieval"
	"github.com/aether-ai/conductor/common/tools"
	"github.com/aether-ai/conductor/common/werrors"
)

// Edge selectors returned by executors. The empty selector means "take
// the first matching edge"; conditional and loop nodes return the branch
// they resolved.
const (
	selectTrue  = "true"
	selectFalse = "false"
)

// executors runs individual nodes for one execution. Dispatch is a
// switch over the closed NodeKind set.
type executors struct {
	provider  provider.ModelProvider
	tools     tools.Registry
	retriever retrieval.Retriever
	caps      capability.Set
	cfg       config.EngineConfig
	eval      *condition.Evaluator
	bus       *events.Bus
	log       *logger.Logger
}

// run executes one node and returns the edge selector. The caller wraps
// ctx with the per-node timeout and publishes NODE_EXECUTED.
func (x *executors) run(ctx context.Context, wf *graph.Workflow, node *graph.Node, ec *ExecutionContext) (string, error) {
	switch node.Kind {
	case graph.KindStart, graph.KindEnd:
		return "", nil
	case graph.KindModel, graph.KindLLM:
		return "", x.runModel(ctx, node, ec)
	case graph.KindTool, graph.KindTools:
		return "", x.runTools(ctx, node, ec)
	case graph.KindRetrieval:
		return "", x.runRetrieval(ctx, node, ec)
	case graph.KindMemory:
		return "", x.runMemory(ctx, node, ec)
	case graph.KindConditional:
		return x.runConditional(node, ec)
	case graph.KindLoop:
		return x.runLoop(node, ec)
	case graph.KindVariable:
		return "", x.runVariable(node, ec)
	case graph.KindDelay:
		return "", x.runDelay(ctx, node, ec)
	case graph.KindErrorHandler:
		return "", x.runErrorHandler(wf, node, ec)
	default:
		return "", werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("unknown node kind %q", node.Kind))
	}
}

func (x *executors) runModel(ctx context.Context, node *graph.Node, ec *ExecutionContext) error {
	req := provider.Request{
		Provider:    node.ConfigString("provider", "openai"),
		Model:       node.ConfigString("model", ""),
		Temperature: node.ConfigFloat("temperature", 0.7),
		MaxTokens:   node.ConfigInt("max_tokens", 0),
		Messages:    x.effectiveMessages(node, ec),
	}

	if x.caps.EnableTools && !node.ConfigBool("disable_tools", false) && x.tools != nil {
		req.Tools = x.tools.Bindings(node.ConfigStrings("available_tools"))
	}

	reply, err := x.provider.Invoke(ctx, req)
	if err != nil {
		return werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("model invocation: %w", err))
	}

	ec.Append(reply.Message)
	ec.HasToolCalls = len(reply.Message.ToolCalls) > 0
	ec.AddUsage(reply.Usage, reply.Cost)

	total := reply.Usage.Total
	if total == 0 {
		total = reply.Usage.Prompt + reply.Usage.Completion
	}
	x.publish(ec, events.TokenUsage, map[string]any{
		"node_id":           node.ID,
		"model":             req.Model,
		"prompt_tokens":     reply.Usage.Prompt,
		"completion_tokens": reply.Usage.Completion,
		"delta_tokens":      total,
		"delta_cost":        reply.Cost,
	})

	return nil
}

// effectiveMessages assembles the provider-visible message list: system
// prompt, conversation summary, retrieval context as an extra system
// message, then the conversation itself.
func (x *executors) effectiveMessages(node *graph.Node, ec *ExecutionContext) []provider.Message {
	var out []provider.Message

	system := node.ConfigString("system_message", node.ConfigString("system_prompt", ""))
	if system != "" {
		out = append(out, provider.Message{Role: provider.RoleSystem, Content: system})
	}
	if ec.ConversationSummary != "" {
		out = append(out, provider.Message{
			Role:    provider.RoleSystem,
			Content: "Summary of the earlier conversation:\n" + ec.ConversationSummary,
		})
	}
	if ec.RetrievalContext != "" {
		out = append(out, provider.Message{
			Role:    provider.RoleSystem,
			Content: "Relevant context:\n" + ec.RetrievalContext,
		})
	}

	return append(out, ec.Messages...)
}

func (x *executors) runTools(ctx context.Context, node *graph.Node, ec *ExecutionContext) error {
	assistant := ec.LastAssistant()
	if assistant == nil || len(assistant.ToolCalls) == 0 {
		return nil
	}
	calls := assistant.ToolCalls

	if ec.ToolCallCount+len(calls) > x.caps.MaxToolCalls {
		return werrors.ResourceLimitExceeded(node.ID, "tool_calls", x.caps.MaxToolCalls)
	}

	timeout := time.Duration(node.ConfigInt("tool_timeout_ms", 0)) * time.Millisecond
	if timeout <= 0 {
		timeout = x.cfg.ToolTimeout
	}

	results := make([]provider.Message, len(calls))
	if node.ConfigBool("parallel_calls", false) {
		if err := x.callParallel(ctx, node, ec, calls, timeout, results); err != nil {
			return err
		}
	} else {
		for i, call := range calls {
			msg, err := x.callOne(ctx, node, ec, call, timeout)
			if err != nil {
				return err
			}
			// Tally per call at the emission point: the count must match
			// the TOOL_CALLED events even when a later call fails.
			ec.ToolCallCount++
			results[i] = msg
		}
	}

	for _, msg := range results {
		ec.Append(msg)
	}
	return nil
}

// callParallel runs all requested calls in a bounded group. Results keep
// the request order regardless of completion order.
func (x *executors) callParallel(ctx context.Context, node *graph.Node, ec *ExecutionContext, calls []provider.ToolCall, timeout time.Duration, results []provider.Message) error {
	bound := x.caps.MaxToolCalls
	if bound <= 0 || bound > len(calls) {
		bound = len(calls)
	}
	sem := make(chan struct{}, bound)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		completed int
	)
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call provider.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			msg, err := x.callOne(ctx, node, ec, call, timeout)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			completed++
			results[i] = msg
		}(i, call)
	}
	wg.Wait()

	// Every successful call emitted TOOL_CALLED; count those even when
	// the batch as a whole failed.
	ec.ToolCallCount += completed
	return firstErr
}

func (x *executors) callOne(ctx context.Context, node *graph.Node, ec *ExecutionContext, call provider.ToolCall, timeout time.Duration) (provider.Message, error) {
	started := time.Now()

	tool, err := x.tools.Get(call.Name)
	if err != nil {
		return provider.Message{}, werrors.WrapNode(werrors.KindRuntime, node.ID, err)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return provider.Message{}, werrors.WrapNode(werrors.KindRuntime, node.ID,
				fmt.Errorf("tool %s: malformed arguments: %w", call.Name, err))
		}
	}

	result, callErr := tools.Call(ctx, tool, args, timeout)
	outcome := "success"
	if callErr != nil {
		if !tool.BypassWhenUnavailable {
			return provider.Message{}, werrors.WrapNode(werrors.KindRuntime, node.ID,
				fmt.Errorf("tool %s: %w", call.Name, callErr))
		}
		result = fmt.Sprintf("tool %s unavailable: %v", call.Name, callErr)
		outcome = "bypassed"
	}

	x.publish(ec, events.ToolCalled, map[string]any{
		"node_id":      node.ID,
		"tool_name":    call.Name,
		"tool_call_id": call.ID,
		"duration_ms":  time.Since(started).Milliseconds(),
		"outcome":      outcome,
	})

	return provider.Message{
		Role:       provider.RoleTool,
		Content:    result,
		ToolCallID: call.ID,
	}, nil
}

func (x *executors) runRetrieval(ctx context.Context, node *graph.Node, ec *ExecutionContext) error {
	limit := node.ConfigInt("limit", x.caps.MaxDocuments)
	if x.caps.MaxDocuments > 0 && limit > x.caps.MaxDocuments {
		return werrors.ResourceLimitExceeded(node.ID, "documents", x.caps.MaxDocuments)
	}

	query := node.ConfigString("query", ec.LastUserContent())

	if _, loaded := ec.Metadata["retriever_loaded"]; !loaded {
		ec.Metadata["retriever_loaded"] = true
		x.publish(ec, events.RetrieverLoaded, map[string]any{
			"node_id": node.ID,
			"limit":   limit,
		})
	}

	docs, err := x.retriever.Retrieve(ctx, query)
	if err != nil {
		// Retriever failures are non-fatal at this node: record, clear
		// the context, and keep walking.
		ec.RetrievalContext = ""
		ec.AddError(fmt.Sprintf("retrieval failed at node %s: %v", node.ID, err))
		x.log.Warn("retrieval failed, continuing without context",
			"execution_id", ec.ExecutionID, "node_id", node.ID, "error", err)
		return nil
	}

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.PageContent)
	}
	ec.RetrievalContext = strings.Join(parts, "\n\n")
	return nil
}

func (x *executors) runMemory(ctx context.Context, node *graph.Node, ec *ExecutionContext) error {
	window := node.ConfigInt("memory_window", x.caps.MemoryWindow)
	if x.caps.MemoryWindow > 0 && window > x.caps.MemoryWindow {
		return werrors.ResourceLimitExceeded(node.ID, "memory_window", x.caps.MemoryWindow)
	}
	if window <= 0 || len(ec.Messages) <= window {
		return nil
	}

	older := ec.Messages[:len(ec.Messages)-window]
	var transcript strings.Builder
	if ec.ConversationSummary != "" {
		transcript.WriteString("Existing summary:\n")
		transcript.WriteString(ec.ConversationSummary)
		transcript.WriteString("\n\n")
	}
	for _, msg := range older {
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, msg.Content)
	}

	reply, err := x.provider.Invoke(ctx, provider.Request{
		Provider:    node.ConfigString("provider", "openai"),
		Model:       node.ConfigString("model", "gpt-4o-mini"),
		Temperature: 0,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "Summarize the conversation below in a few sentences, keeping facts and decisions."},
			{Role: provider.RoleUser, Content: transcript.String()},
		},
	})
	if err != nil {
		return werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("summarization: %w", err))
	}

	ec.ConversationSummary = reply.Message.Content
	ec.AddUsage(reply.Usage, reply.Cost)
	ec.Messages = append([]provider.Message(nil), ec.Messages[len(ec.Messages)-window:]...)
	return nil
}

func (x *executors) runConditional(node *graph.Node, ec *ExecutionContext) (string, error) {
	cond := node.ConfigString("condition", "")
	if cond == "" {
		return "", werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("conditional node has no condition"))
	}

	outcome, err := x.eval.Evaluate(cond, ec.ConditionEnv())
	if err != nil {
		return "", werrors.WrapNode(werrors.KindRuntime, node.ID, err)
	}

	ec.ConditionalResults[node.ID] = outcome
	if outcome {
		return selectTrue, nil
	}
	return selectFalse, nil
}

// runLoop returns selectTrue while the body should run again and
// selectFalse on exit. Iteration counts entries: max_iterations=1 takes
// the body exactly once.
func (x *executors) runLoop(node *graph.Node, ec *ExecutionContext) (string, error) {
	state := ec.LoopState[node.ID]
	if state == nil {
		state = &LoopState{StartedAt: time.Now().UTC()}
		ec.LoopState[node.ID] = state
	} else {
		state.Iteration++
	}

	maxIters := node.ConfigInt("max_iterations", 0)
	if maxIters <= 0 {
		return "", werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("loop node has no max_iterations"))
	}
	if maxIters > x.cfg.MaxLoopIters {
		return "", werrors.ResourceLimitExceeded(node.ID, "iterations", x.cfg.MaxLoopIters)
	}
	if state.Iteration >= maxIters {
		return selectFalse, nil
	}

	if cond := node.ConfigString("condition", ""); cond != "" {
		outcome, err := x.eval.Evaluate(cond, ec.ConditionEnv())
		if err != nil {
			return "", werrors.WrapNode(werrors.KindRuntime, node.ID, err)
		}
		if !outcome {
			return selectFalse, nil
		}
	}
	return selectTrue, nil
}

func (x *executors) runVariable(node *graph.Node, ec *ExecutionContext) error {
	name := node.ConfigString("variable_name", "")
	if name == "" {
		return werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("variable node has no variable_name"))
	}

	value := node.Config["value"]
	// "variable other" references resolve to the named variable's value
	if ref, ok := value.(string); ok && strings.HasPrefix(ref, "variable ") {
		value = ec.Variables[strings.TrimSpace(strings.TrimPrefix(ref, "variable "))]
	}

	switch op := node.ConfigString("operation", "set"); op {
	case "set":
		ec.Variables[name] = value
		// Map values are flattened so edge guards can reference the
		// individual entries; the set-capabilities node relies on this.
		if m, ok := value.(map[string]any); ok {
			for k, v := range m {
				ec.Variables[k] = v
			}
		}
	case "get":
		ec.Metadata["variable_"+name] = ec.Variables[name]
	case "append":
		switch existing := ec.Variables[name].(type) {
		case nil:
			ec.Variables[name] = []any{value}
		case []any:
			ec.Variables[name] = append(existing, value)
		case string:
			ec.Variables[name] = existing + fmt.Sprint(value)
		default:
			ec.Variables[name] = []any{existing, value}
		}
	case "increment":
		ec.Variables[name] = numeric(ec.Variables[name]) + deltaOf(value)
	case "decrement":
		ec.Variables[name] = numeric(ec.Variables[name]) - deltaOf(value)
	default:
		return werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("unknown variable operation %q", op))
	}
	return nil
}

func (x *executors) runDelay(ctx context.Context, node *graph.Node, ec *ExecutionContext) error {
	duration := time.Duration(node.ConfigInt("duration", 0)) * time.Millisecond
	maxDuration := time.Duration(node.ConfigInt("max_duration", 0)) * time.Millisecond

	switch node.ConfigString("delay_type", "fixed") {
	case "fixed":
	case "random":
		if maxDuration > duration {
			duration += time.Duration(rand.Int63n(int64(maxDuration - duration)))
		}
	case "exponential":
		state := ec.LoopState[node.ID]
		if state == nil {
			state = &LoopState{StartedAt: time.Now().UTC()}
			ec.LoopState[node.ID] = state
		} else {
			state.Iteration++
		}
		duration = duration << uint(state.Iteration)
		if maxDuration > 0 && duration > maxDuration {
			duration = maxDuration
		}
	case "dynamic":
		if name := node.ConfigString("duration_variable", ""); name != "" {
			if ms := numeric(ec.Variables[name]); ms > 0 {
				duration = time.Duration(ms) * time.Millisecond
			}
		}
	default:
		return werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("unknown delay_type"))
	}

	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return werrors.WrapNode(kindForContextErr(ctx.Err()), node.ID, ctx.Err())
	}
}

// runErrorHandler arms a retry region: downstream failures rewind to the
// handler's successor until retries are exhausted.
func (x *executors) runErrorHandler(wf *graph.Workflow, node *graph.Node, ec *ExecutionContext) error {
	state := ec.ErrorState[node.ID]
	if state != nil {
		return nil // re-entered on retry; keep remaining budget
	}

	resumeAt := ""
	fallback := ""
	for _, edge := range wf.Outgoing(node.ID) {
		if edge.Label == "fallback" {
			fallback = edge.Target
			continue
		}
		if resumeAt == "" {
			resumeAt = edge.Target
		}
	}
	if action := node.ConfigString("fallback_action", ""); action != "" {
		fallback = action
	}

	ec.ErrorState[node.ID] = &HandlerState{
		RetriesRemaining: node.ConfigInt("retry_count", 0),
		ResumeAt:         resumeAt,
		FallbackEdge:     fallback,
		MessageMark:      len(ec.Messages),
		HadToolCalls:     ec.HasToolCalls,
	}
	ec.ActiveHandlers = append(ec.ActiveHandlers, node.ID)
	return nil
}

func (x *executors) publish(ec *ExecutionContext, t events.Type, data map[string]any) {
	x.bus.Publish(context.Background(), events.New(t, ec.ExecutionID, ec.UserID, ec.ConversationID, data))
}

func kindForContextErr(err error) werrors.Kind {
	if err == context.DeadlineExceeded {
		return werrors.KindTimeout
	}
	return werrors.KindCancelled
}

func numeric(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func deltaOf(value any) int {
	if value == nil {
		return 1
	}
	if n := numeric(value); n != 0 {
		return n
	}
	return 1
}
