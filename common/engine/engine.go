// Package engine walks validated workflow graphs node by node. Each
// execution runs sequentially on one task; the engine runs unrelated
// executions in parallel on a bounded worker pool. All lifecycle
// telemetry goes through the event bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/condition"
	"github.com/aether-ai/conductor/common/config"
	"github.com/aether-ai/conductor/common/events"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/logger"
	"github.com/aether-ai/conductor/common/models"
	"github.com/aether-ai/conductor/common/provider"
	"github.com/aether-ai/conductor/common/registry"
	"github.com/aether-ai/conductor/common/retrieval"
	"github.com/aether-ai/conductor/common/template"
	"github.com/aether-ai/conductor/common/tools"
	"github.com/aether-ai/conductor/common/validation"
	"github.com/aether-ai/conductor/common/werrors"
)

// Request is one execution request. Exactly one of TemplateID,
// DefinitionID, or inline Nodes must be supplied.
type Request struct {
	TemplateID   string
	DefinitionID string

	Nodes        []graph.Node
	Edges        []graph.Edge
	Capabilities *capability.Set

	Params  map[string]any
	Message string
	History []provider.Message

	UserID         string
	ConversationID string
}

// TemplateSource loads stored templates
type TemplateSource interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
}

// DefinitionSource loads stored workflow definitions
type DefinitionSource interface {
	GetDefinition(ctx context.Context, id string) (*graph.Workflow, capability.Set, error)
}

// Deps are the engine's collaborators
type Deps struct {
	Provider    provider.ModelProvider
	Tools       tools.Registry
	Retriever   retrieval.Retriever
	Templates   TemplateSource
	Definitions DefinitionSource
	Bus         *events.Bus
	Logger      *logger.Logger
}

// Engine executes workflow requests
type Engine struct {
	cfg       config.EngineConfig
	deps      Deps
	validator *validation.Validator
	eval      *condition.Evaluator
	slots     chan struct{}
}

// New creates an engine. Zero-valued config fields get the defaults.
func New(cfg config.EngineConfig, deps Deps) *Engine {
	if cfg.NodeTimeout <= 0 {
		cfg.NodeTimeout = 60 * time.Second
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 120 * time.Second
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if cfg.MaxLoopIters <= 0 {
		cfg.MaxLoopIters = 1000
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	if deps.Bus == nil {
		deps.Bus = events.Default()
	}

	return &Engine{
		cfg:  cfg,
		deps: deps,
		validator: validation.New(validation.Limits{
			MaxNodes:          cfg.MaxNodes,
			EdgeFactor:        cfg.EdgeFactor,
			MaxLoopIterations: cfg.MaxLoopIters,
			TokenBudget:       cfg.TokenBudget,
		}),
		eval:  condition.NewEvaluator(),
		slots: make(chan struct{}, cfg.WorkerPoolSize),
	}
}

// Validate runs the four-layer validator without executing anything
func (e *Engine) Validate(wf *graph.Workflow, caps capability.Set) *validation.Report {
	return e.validator.Validate(wf, caps, e.deps.Tools)
}

// ListNodeTypes returns the node-kind catalog
func (e *Engine) ListNodeTypes() []registry.Entry {
	return registry.Entries()
}

// Execute runs one request to completion and returns its result. Every
// call publishes exactly one STARTED and exactly one terminal
// EXECUTION_COMPLETED or EXECUTION_FAILED, including runs that fail
// preparation or validation.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	executionID := uuid.Must(uuid.NewV7()).String()

	// STARTED precedes resolution and validation: a run that never
	// enters the graph still pairs it with one terminal event.
	e.deps.Bus.Publish(context.Background(),
		events.New(events.Started, executionID, req.UserID, req.ConversationID, map[string]any{
			"template_id":   req.TemplateID,
			"definition_id": req.DefinitionID,
		}))

	wf, caps, templateID, err := e.resolveGraph(ctx, req)
	if err != nil {
		e.publishFailure(executionID, req, templateID, err, nil)
		return failedResult(executionID, req, templateID, err), err
	}

	report := e.validator.Validate(wf, caps, e.deps.Tools)
	if !report.Valid() {
		verr := werrors.Wrap(werrors.KindValidation, &werrors.ValidationError{Messages: report.AllErrors()})
		e.publishFailure(executionID, req, templateID, verr, report)
		result := failedResult(executionID, req, templateID, verr)
		result.Errors = report.AllErrors()
		return result, verr
	}

	if !wf.Compiled() {
		if err := wf.Compile(); err != nil {
			perr := werrors.Wrap(werrors.KindPreparation, err)
			e.publishFailure(executionID, req, templateID, perr, nil)
			return failedResult(executionID, req, templateID, perr), perr
		}
	}

	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		cerr := werrors.Wrap(kindForContextErr(ctx.Err()), ctx.Err())
		e.publishFailure(executionID, req, templateID, cerr, nil)
		return failedResult(executionID, req, templateID, cerr), cerr
	}

	ec := NewContext(executionID, req.UserID, req.ConversationID, caps)
	ec.Messages = append(ec.Messages, req.History...)
	if req.Message != "" {
		ec.Append(provider.Message{Role: provider.RoleUser, Content: req.Message})
	}

	started := time.Now()
	e.publishLifecycle(ec, events.ExecutionStarted, map[string]any{
		"node_count": len(wf.Nodes),
	})
	e.announceResources(ec, wf, caps)

	status := e.walk(ctx, wf, caps, ec)
	elapsed := time.Since(started)

	result := Assemble(ec, elapsed, status, caps.WorkflowTypeOf(), req.DefinitionID, templateID)

	if status == models.StatusCompleted {
		e.publishLifecycle(ec, events.ExecutionCompleted, map[string]any{
			"template_id":       templateID,
			"tokens_used":       result.TokensUsed,
			"cost":              result.Cost,
			"execution_time_ms": result.ExecutionTimeMS,
		})
	} else {
		errType := "runtime"
		if status == models.StatusCancelled {
			errType = "cancelled"
		}
		first := ""
		if len(ec.Errors) > 0 {
			first = ec.Errors[0]
		}
		e.publishLifecycle(ec, events.ExecutionFailed, map[string]any{
			"error":       first,
			"error_type":  errType,
			"error_stage": "runtime",
		})
	}

	return result, nil
}

// resolveGraph materializes the workflow for a request. Template
// execution never persists anything: the compiled graph lives only for
// this call.
func (e *Engine) resolveGraph(ctx context.Context, req Request) (*graph.Workflow, capability.Set, string, error) {
	switch {
	case req.TemplateID != "":
		if e.deps.Templates == nil {
			return nil, capability.Set{}, req.TemplateID,
				werrors.New(werrors.KindPreparation, "no template source configured")
		}
		tpl, err := e.deps.Templates.GetByID(ctx, req.TemplateID)
		if err != nil {
			return nil, capability.Set{}, req.TemplateID,
				werrors.Wrap(werrors.KindPreparation, fmt.Errorf("load template %s: %w", req.TemplateID, err))
		}
		compiled, err := template.Compile(tpl, req.Params)
		if err != nil {
			return nil, capability.Set{}, req.TemplateID, err
		}
		return compiled.Workflow, compiled.Capabilities, req.TemplateID, nil

	case req.DefinitionID != "":
		if e.deps.Definitions == nil {
			return nil, capability.Set{}, "",
				werrors.New(werrors.KindPreparation, "no definition source configured")
		}
		wf, caps, err := e.deps.Definitions.GetDefinition(ctx, req.DefinitionID)
		if err != nil {
			return nil, capability.Set{}, "",
				werrors.Wrap(werrors.KindPreparation, fmt.Errorf("load definition %s: %w", req.DefinitionID, err))
		}
		return wf, caps.Normalize(), "", nil

	case len(req.Nodes) > 0:
		caps := capability.FromWorkflowType(capability.TypePlain)
		if req.Capabilities != nil {
			caps = req.Capabilities.Normalize()
		}
		return &graph.Workflow{Nodes: req.Nodes, Edges: req.Edges}, caps, "", nil

	default:
		return nil, capability.Set{}, "",
			werrors.New(werrors.KindPreparation, "request names no template, definition, or inline graph")
	}
}

func (e *Engine) announceResources(ec *ExecutionContext, wf *graph.Workflow, caps capability.Set) {
	for i := range wf.Nodes {
		if wf.Nodes[i].Kind.IsModel() {
			e.publishLifecycle(ec, events.LLMLoaded, map[string]any{
				"provider": wf.Nodes[i].ConfigString("provider", "openai"),
				"model":    wf.Nodes[i].ConfigString("model", ""),
			})
			break
		}
	}
	if caps.EnableTools && e.deps.Tools != nil {
		e.publishLifecycle(ec, events.ToolsLoaded, map[string]any{
			"tools": e.deps.Tools.Names(),
		})
	}
}

// walk traverses the graph from start until an end node, cancellation,
// or an unrecoverable error. It returns the terminal status.
func (e *Engine) walk(parent context.Context, wf *graph.Workflow, caps capability.Set, ec *ExecutionContext) models.ExecutionStatus {
	ctx, cancel := context.WithTimeout(parent, e.cfg.ExecutionTimeout)
	defer cancel()

	x := &executors{
		provider:  e.deps.Provider,
		tools:     e.deps.Tools,
		retriever: e.deps.Retriever,
		caps:      caps,
		cfg:       e.cfg,
		eval:      e.eval,
		bus:       e.deps.Bus,
		log:       e.deps.Logger,
	}

	current := wf.StartID()
	stepCap := e.cfg.MaxLoopIters * maxInt(len(wf.Nodes), 1)

	for steps := 0; current != ""; steps++ {
		if err := ctx.Err(); err != nil {
			if parent.Err() != nil && !errors.Is(parent.Err(), context.DeadlineExceeded) {
				ec.AddError("execution cancelled")
				return models.StatusCancelled
			}
			ec.AddError(fmt.Sprintf("execution timed out after %s", e.cfg.ExecutionTimeout))
			return models.StatusFailed
		}
		if steps > stepCap {
			ec.AddError(fmt.Sprintf("execution exceeded %d node steps", stepCap))
			return models.StatusFailed
		}

		node := wf.Node(current)
		if node == nil {
			ec.AddError(fmt.Sprintf("edge target %q does not exist", current))
			return models.StatusFailed
		}

		selector, err := e.runNode(ctx, x, wf, node, ec)
		if err != nil {
			kind := werrors.KindOf(err)
			if kind == werrors.KindCancelled {
				ec.AddError(err.Error())
				return models.StatusCancelled
			}

			if handlerID := e.armedHandler(ec); handlerID != "" && retryableKind(kind) {
				state := ec.ErrorState[handlerID]
				state.Attempts++
				state.LastError = err.Error()

				if state.RetriesRemaining > 0 {
					state.RetriesRemaining--
					e.deps.Logger.Warn("retrying after node failure",
						"execution_id", ec.ExecutionID,
						"handler", handlerID,
						"node_id", node.ID,
						"remaining", state.RetriesRemaining,
					)
					// Rewind the conversation to the arm-time snapshot so
					// re-running the region cannot duplicate messages.
					// Tool-call tallies stay: their TOOL_CALLED events are
					// already out.
					ec.Messages = ec.Messages[:state.MessageMark]
					ec.HasToolCalls = state.HadToolCalls
					current = state.ResumeAt
					continue
				}

				// Retries exhausted: disarm the region so the failure
				// cannot loop, then take the fallback edge if one exists.
				ec.ActiveHandlers = ec.ActiveHandlers[:len(ec.ActiveHandlers)-1]
				if state.FallbackEdge != "" {
					current = state.FallbackEdge
					continue
				}
			}

			ec.AddError(err.Error())
			current = wf.FirstReachableEnd(node.ID)
			if current == "" {
				break
			}
			continue
		}

		if node.Kind == graph.KindEnd {
			break
		}

		next, err := e.nextNode(wf, node, selector, ec)
		if err != nil {
			ec.AddError(err.Error())
			current = wf.FirstReachableEnd(node.ID)
			if current == "" {
				break
			}
			continue
		}
		current = next
	}

	if len(ec.Errors) > 0 {
		return models.StatusFailed
	}
	return models.StatusCompleted
}

// runNode executes a node under the per-node timeout and publishes
// NODE_EXECUTED regardless of outcome.
func (e *Engine) runNode(ctx context.Context, x *executors, wf *graph.Workflow, node *graph.Node, ec *ExecutionContext) (string, error) {
	nodeCtx, cancel := context.WithTimeout(ctx, e.cfg.NodeTimeout)
	defer cancel()

	entered := time.Now()
	selector, err := x.run(nodeCtx, wf, node, ec)
	exited := time.Now()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ec.RecordHistory(node.ID, entered, exited, outcome)

	e.deps.Bus.Publish(ctx, events.New(events.NodeExecuted, ec.ExecutionID, ec.UserID, ec.ConversationID, map[string]any{
		"node_id":     node.ID,
		"kind":        string(node.Kind),
		"duration_ms": exited.Sub(entered).Milliseconds(),
		"outcome":     outcome,
	}))

	if err != nil && werrors.KindOf(err) == werrors.KindTimeout && ctx.Err() == nil {
		// The node deadline fired but the execution deadline did not:
		// attribute the timeout to this node.
		err = werrors.WrapNode(werrors.KindTimeout, node.ID, fmt.Errorf("node timed out after %s", e.cfg.NodeTimeout))
	}
	return selector, err
}

// nextNode picks the outgoing edge. Branch selectors match edges whose
// condition is the literal "true"/"false"; otherwise guarded edges are
// evaluated in declaration order and the first hit wins, with the first
// unguarded edge as fallback.
func (e *Engine) nextNode(wf *graph.Workflow, node *graph.Node, selector string, ec *ExecutionContext) (string, error) {
	edges := wf.Outgoing(node.ID)
	if len(edges) == 0 {
		return "", werrors.WrapNode(werrors.KindRuntime, node.ID, fmt.Errorf("no outgoing edge"))
	}

	if selector != "" {
		for _, edge := range edges {
			if edge.Condition == selector || edge.Label == selector {
				return edge.Target, nil
			}
		}
	}

	env := ec.ConditionEnv()
	var fallback string
	for _, edge := range edges {
		if edge.Kind == graph.EdgeConditional && edge.Condition != "" &&
			edge.Condition != selectTrue && edge.Condition != selectFalse {
			hit, err := e.eval.Evaluate(edge.Condition, env)
			if err != nil {
				return "", werrors.WrapNode(werrors.KindRuntime, node.ID, err)
			}
			if hit {
				return edge.Target, nil
			}
			continue
		}
		if edge.Kind == graph.EdgeDefault && fallback == "" {
			fallback = edge.Target
		}
	}

	if fallback != "" {
		return fallback, nil
	}

	// Branch selectors with no literal match fall through to edge order
	if selector == selectTrue {
		return edges[0].Target, nil
	}
	if selector == selectFalse && len(edges) > 1 {
		return edges[len(edges)-1].Target, nil
	}
	return edges[0].Target, nil
}

// armedHandler returns the most recently entered error_handler region
// that is still armed, or ""
func (e *Engine) armedHandler(ec *ExecutionContext) string {
	if len(ec.ActiveHandlers) == 0 {
		return ""
	}
	id := ec.ActiveHandlers[len(ec.ActiveHandlers)-1]
	if ec.ErrorState[id] == nil {
		return ""
	}
	return id
}

func retryableKind(kind werrors.Kind) bool {
	switch kind {
	case werrors.KindRuntime, werrors.KindRetriever, werrors.KindTimeout:
		return true
	}
	return false
}

// publishFailure reports failures that happen before the graph walk
// starts (preparation and validation).
func (e *Engine) publishFailure(executionID string, req Request, templateID string, err error, report *validation.Report) {
	kind := werrors.KindOf(err)
	data := map[string]any{
		"error":       err.Error(),
		"error_type":  string(kind),
		"error_stage": kind.Stage(),
		"template_id": templateID,
	}
	if report != nil {
		data["validation_report"] = report
	}
	e.deps.Bus.Publish(context.Background(),
		events.New(events.ExecutionFailed, executionID, req.UserID, req.ConversationID, data))
}

func (e *Engine) publishLifecycle(ec *ExecutionContext, t events.Type, data map[string]any) {
	e.deps.Bus.Publish(context.Background(),
		events.New(t, ec.ExecutionID, ec.UserID, ec.ConversationID, data))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
