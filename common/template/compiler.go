// Package template expands a stored workflow template plus runtime
// parameters into a concrete node/edge graph. Two emission modes exist:
// the fixed universal-chat topology, and the minimal capability-based
// graph derived from the template's declared requirements.
package template

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/models"
	"github.com/aether-ai/conductor/common/werrors"
)

// UniversalChatName selects the universal-chat topology by template name
const UniversalChatName = "universal_chat"

// Result is a compiled template: the graph plus the effective
// capability set the engine enforces.
type Result struct {
	Workflow     *graph.Workflow
	Capabilities capability.Set
	Params       map[string]any
}

// Compile expands a template with runtime parameters. Compilation is
// pure: identical inputs produce identical graphs, node ids included.
func Compile(tpl *models.WorkflowTemplate, runtimeParams map[string]any) (*Result, error) {
	if tpl == nil {
		return nil, werrors.New(werrors.KindTemplate, "nil template")
	}

	params, err := MergeParams(tpl.DefaultParams, runtimeParams)
	if err != nil {
		return nil, werrors.Wrap(werrors.KindTemplate, err)
	}

	caps := applyLimitOverrides(tpl.Capabilities().Normalize(), params)

	var wf *graph.Workflow
	if tpl.Name == UniversalChatName || tpl.WorkflowType == capability.TypeUniversalChat {
		wf = emitUniversalChat(caps, params)
	} else {
		wf = emitCapabilityBased(caps, params)
	}

	if err := wf.Compile(); err != nil {
		return nil, werrors.Wrap(werrors.KindTemplate, err)
	}

	return &Result{Workflow: wf, Capabilities: caps, Params: params}, nil
}

// MergeParams overlays runtime parameters onto template defaults using
// RFC 7386 merge-patch semantics: runtime keys win, explicit nulls
// delete, nested objects merge.
func MergeParams(defaults, overrides map[string]any) (map[string]any, error) {
	if len(overrides) == 0 {
		return copyMap(defaults), nil
	}
	if len(defaults) == 0 {
		return copyMap(overrides), nil
	}

	base, err := json.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal default params: %w", err)
	}
	patch, err := json.Marshal(overrides)
	if err != nil {
		return nil, fmt.Errorf("marshal runtime params: %w", err)
	}

	merged, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return nil, fmt.Errorf("merge params: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("decode merged params: %w", err)
	}
	return out, nil
}

// applyLimitOverrides lets runtime params tighten the template's numeric
// limits. Params can only lower a limit, never raise it past the
// template's ceiling.
func applyLimitOverrides(caps capability.Set, params map[string]any) capability.Set {
	if v := paramInt(params, "max_tool_calls", -1); v >= 0 && v < caps.MaxToolCalls {
		caps.MaxToolCalls = v
	}
	if v := paramInt(params, "max_documents", -1); v >= 0 && v < caps.MaxDocuments {
		caps.MaxDocuments = v
	}
	if v := paramInt(params, "memory_window", -1); v >= 0 && v < caps.MemoryWindow {
		caps.MemoryWindow = v
	}
	return caps
}

// emitCapabilityBased produces the minimal graph for a template:
// start -> [retrieval?] -> llm <-> [tools?] -> end. Node ids are the
// stable lowercase strings start, retrieval, llm, tools, end.
func emitCapabilityBased(caps capability.Set, params map[string]any) *graph.Workflow {
	wf := &graph.Workflow{
		Metadata: map[string]any{"emission": "capability"},
	}

	x := 0.0
	addNode := func(id string, kind graph.NodeKind, config map[string]any) {
		wf.Nodes = append(wf.Nodes, graph.Node{
			ID:       id,
			Kind:     kind,
			Label:    id,
			Position: graph.Position{X: x, Y: 0},
			Config:   config,
		})
		x += 220
	}

	addNode("start", graph.KindStart, nil)

	prev := "start"
	if caps.EnableRetrieval {
		addNode("retrieval", graph.KindRetrieval, map[string]any{
			"limit":           caps.MaxDocuments,
			"score_threshold": paramFloat(params, "score_threshold", 0.0),
		})
		wf.Edges = append(wf.Edges, defaultEdge("e-start-retrieval", prev, "retrieval"))
		prev = "retrieval"
	}

	addNode("llm", graph.KindLLM, llmConfig(params))
	wf.Edges = append(wf.Edges, defaultEdge(fmt.Sprintf("e-%s-llm", prev), prev, "llm"))

	if caps.EnableTools {
		addNode("tools", graph.KindTools, map[string]any{
			"available_tools": paramStrings(params, "tools"),
		})

		// Two-edge cycle with the llm node. The guarded edge routes back
		// into the tool loop until the model stops calling tools or the
		// cap is reached; the default edge finalizes to end.
		wf.Edges = append(wf.Edges,
			graph.Edge{
				ID:        "e-llm-tools",
				Source:    "llm",
				Target:    "tools",
				Kind:      graph.EdgeConditional,
				Condition: "has_tool_calls AND tool_calls < variable max_tool_calls",
				Label:     "tool_call",
			},
			graph.Edge{
				ID:     "e-tools-llm",
				Source: "tools",
				Target: "llm",
				Kind:   graph.EdgeDefault,
				Label:  "tool_result",
			},
		)
	}

	addNode("end", graph.KindEnd, nil)
	wf.Edges = append(wf.Edges, defaultEdge("e-llm-end", "llm", "end"))

	return wf
}

// Universal-chat node ids, fixed so re-compilation is stable
const (
	uStart        = "start"
	uCapabilities = "set-capabilities"
	uMemoryCheck  = "memory-check"
	uMemory       = "memory"
	uRetCheck     = "retrieval-check"
	uRetrieval    = "retrieval"
	uLLM          = "llm"
	uToolCheck    = "tool-check"
	uToolLimit    = "tool-limit"
	uTools        = "tools"
	uFinalize     = "finalize"
	uEnd          = "end"
)

// emitUniversalChat produces the fixed 12-node topology threading
// conditional branches for memory, retrieval, tools, and tool-loop
// finalization.
func emitUniversalChat(caps capability.Set, params map[string]any) *graph.Workflow {
	wf := &graph.Workflow{
		Metadata: map[string]any{"emission": "universal_chat"},
	}

	finalizeConfig := llmConfig(params)
	finalizeConfig["disable_tools"] = true

	nodes := []graph.Node{
		{ID: uStart, Kind: graph.KindStart},
		{ID: uCapabilities, Kind: graph.KindVariable, Config: map[string]any{
			"operation":     "set",
			"variable_name": "capabilities",
			"value":         caps.Variables(),
		}},
		{ID: uMemoryCheck, Kind: graph.KindConditional, Config: map[string]any{
			"condition": "variable enable_memory equals true",
		}},
		{ID: uMemory, Kind: graph.KindMemory, Config: map[string]any{
			"memory_window": caps.MemoryWindow,
		}},
		{ID: uRetCheck, Kind: graph.KindConditional, Config: map[string]any{
			"condition": "variable enable_retrieval equals true",
		}},
		{ID: uRetrieval, Kind: graph.KindRetrieval, Config: map[string]any{
			"limit":           caps.MaxDocuments,
			"score_threshold": paramFloat(params, "score_threshold", 0.0),
		}},
		{ID: uLLM, Kind: graph.KindLLM, Config: llmConfig(params)},
		{ID: uToolCheck, Kind: graph.KindConditional, Config: map[string]any{
			"condition": "variable enable_tools equals true AND has_tool_calls",
		}},
		{ID: uToolLimit, Kind: graph.KindConditional, Config: map[string]any{
			"condition": "tool_calls >= variable max_tool_calls",
		}},
		{ID: uTools, Kind: graph.KindTools, Config: map[string]any{
			"available_tools": paramStrings(params, "tools"),
		}},
		{ID: uFinalize, Kind: graph.KindLLM, Config: finalizeConfig},
		{ID: uEnd, Kind: graph.KindEnd},
	}

	for i := range nodes {
		nodes[i].Label = nodes[i].ID
		nodes[i].Position = graph.Position{X: float64(i) * 220, Y: 0}
	}
	wf.Nodes = nodes

	wf.Edges = []graph.Edge{
		defaultEdge("e-start-caps", uStart, uCapabilities),
		defaultEdge("e-caps-memcheck", uCapabilities, uMemoryCheck),

		conditionalEdge("e-memcheck-memory", uMemoryCheck, uMemory,
			"variable enable_memory equals true"),
		conditionalEdge("e-memcheck-retcheck", uMemoryCheck, uRetCheck,
			"variable enable_memory equals false"),
		defaultEdge("e-memory-retcheck", uMemory, uRetCheck),

		conditionalEdge("e-retcheck-retrieval", uRetCheck, uRetrieval,
			"variable enable_retrieval equals true"),
		conditionalEdge("e-retcheck-llm", uRetCheck, uLLM,
			"variable enable_retrieval equals false"),
		defaultEdge("e-retrieval-llm", uRetrieval, uLLM),

		defaultEdge("e-llm-toolcheck", uLLM, uToolCheck),

		conditionalEdge("e-toolcheck-toollimit", uToolCheck, uToolLimit,
			"variable enable_tools equals true AND has_tool_calls"),
		conditionalEdge("e-toolcheck-end", uToolCheck, uEnd,
			"variable enable_tools equals false OR no_tool_calls"),

		conditionalEdge("e-toollimit-finalize", uToolLimit, uFinalize,
			"tool_calls >= variable max_tool_calls"),
		labeledDefaultEdge("e-toollimit-tools", uToolLimit, uTools, "tool_call"),

		labeledDefaultEdge("e-tools-llm", uTools, uLLM, "tool_result"),

		defaultEdge("e-finalize-end", uFinalize, uEnd),
	}

	return wf
}

func llmConfig(params map[string]any) map[string]any {
	config := map[string]any{
		"provider":    paramString(params, "provider", "openai"),
		"model":       paramString(params, "model", ""),
		"temperature": paramFloat(params, "temperature", 0.7),
	}
	if maxTokens := paramInt(params, "max_tokens", 0); maxTokens > 0 {
		config["max_tokens"] = maxTokens
	}
	if prompt := paramString(params, "system_prompt", ""); prompt != "" {
		config["system_prompt"] = prompt
	}
	return config
}

func defaultEdge(id, source, target string) graph.Edge {
	return graph.Edge{ID: id, Source: source, Target: target, Kind: graph.EdgeDefault}
}

func labeledDefaultEdge(id, source, target, label string) graph.Edge {
	return graph.Edge{ID: id, Source: source, Target: target, Kind: graph.EdgeDefault, Label: label}
}

func conditionalEdge(id, source, target, cond string) graph.Edge {
	return graph.Edge{ID: id, Source: source, Target: target, Kind: graph.EdgeConditional, Condition: cond}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func paramInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func paramStrings(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}
