package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/models"
)

func plainTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:           "tpl-plain",
		Name:         "simple_chat",
		WorkflowType: capability.TypePlain,
		Version:      1,
		DefaultParams: map[string]any{
			"provider":    "openai",
			"model":       "gpt-4o-mini",
			"temperature": 0.3,
		},
	}
}

func TestCompile_PlainIsLinear(t *testing.T) {
	result, err := Compile(plainTemplate(), nil)
	require.NoError(t, err)

	ids := nodeIDs(result.Workflow)
	assert.Equal(t, []string{"start", "llm", "end"}, ids)
	assert.Len(t, result.Workflow.Edges, 2)

	llm := nodeByID(t, result.Workflow, "llm")
	assert.Equal(t, "gpt-4o-mini", llm.Config["model"])
	assert.Equal(t, 0.3, llm.Config["temperature"])
}

func TestCompile_RAGInsertsRetrievalBeforeLLM(t *testing.T) {
	tpl := plainTemplate()
	tpl.WorkflowType = capability.TypeRAG
	tpl.RequiredRetrievers = []string{"kb-main"}

	result, err := Compile(tpl, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "retrieval", "llm", "end"}, nodeIDs(result.Workflow))

	retrieval := nodeByID(t, result.Workflow, "retrieval")
	assert.Equal(t, 10, retrieval.Config["limit"])
}

func TestCompile_ToolsEmitsCycleWithGuard(t *testing.T) {
	tpl := plainTemplate()
	tpl.WorkflowType = capability.TypeTools
	tpl.RequiredTools = []string{"calculator"}
	tpl.DefaultParams["tools"] = []any{"calculator"}

	result, err := Compile(tpl, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "llm", "tools", "end"}, nodeIDs(result.Workflow))

	llmOut := result.Workflow.Outgoing("llm")
	require.Len(t, llmOut, 2)

	// Guarded cycle edge first, default finalization edge last
	assert.Equal(t, "tools", llmOut[0].Target)
	assert.Equal(t, graph.EdgeConditional, llmOut[0].Kind)
	assert.Equal(t, "has_tool_calls AND tool_calls < variable max_tool_calls", llmOut[0].Condition)
	assert.Equal(t, "tool_call", llmOut[0].Label)

	assert.Equal(t, "end", llmOut[1].Target)
	assert.Equal(t, graph.EdgeDefault, llmOut[1].Kind)

	toolsOut := result.Workflow.Outgoing("tools")
	require.Len(t, toolsOut, 1)
	assert.Equal(t, "llm", toolsOut[0].Target)
	assert.Equal(t, "tool_result", toolsOut[0].Label)

	tools := nodeByID(t, result.Workflow, "tools")
	assert.Equal(t, []string{"calculator"}, tools.Config["available_tools"])
}

func TestCompile_UniversalChatTopology(t *testing.T) {
	tpl := plainTemplate()
	tpl.Name = UniversalChatName
	tpl.WorkflowType = capability.TypeUniversalChat

	result, err := Compile(tpl, nil)
	require.NoError(t, err)

	assert.Len(t, result.Workflow.Nodes, 12)

	caps := nodeByID(t, result.Workflow, "set-capabilities")
	assert.Equal(t, graph.KindVariable, caps.Kind)
	seeded, ok := caps.Config["value"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, seeded["enable_tools"])
	assert.Equal(t, 5, seeded["max_tool_calls"])

	finalize := nodeByID(t, result.Workflow, "finalize")
	assert.Equal(t, graph.KindLLM, finalize.Kind)
	assert.Equal(t, true, finalize.Config["disable_tools"])

	// The finalization branch exits the tool loop when the cap is reached
	limitOut := result.Workflow.Outgoing("tool-limit")
	require.Len(t, limitOut, 2)
	assert.Equal(t, "finalize", limitOut[0].Target)
	assert.Equal(t, "tool_calls >= variable max_tool_calls", limitOut[0].Condition)
	assert.Equal(t, "tools", limitOut[1].Target)

	// No edge may target an uppercase end marker
	for _, edge := range result.Workflow.Edges {
		assert.NotEqual(t, "END", edge.Target)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	tpl := plainTemplate()
	tpl.Name = UniversalChatName
	tpl.WorkflowType = capability.TypeUniversalChat

	a, err := Compile(tpl, map[string]any{"temperature": 0.9})
	require.NoError(t, err)
	b, err := Compile(tpl, map[string]any{"temperature": 0.9})
	require.NoError(t, err)

	assert.Equal(t, nodeIDs(a.Workflow), nodeIDs(b.Workflow))
	assert.Equal(t, a.Workflow.Edges, b.Workflow.Edges)
	assert.Equal(t, a.Params, b.Params)
}

func TestMergeParams_RuntimeWinsAndNullsDelete(t *testing.T) {
	defaults := map[string]any{
		"model":       "gpt-4o-mini",
		"temperature": 0.3,
		"options":     map[string]any{"a": 1, "b": 2},
	}
	overrides := map[string]any{
		"temperature": 0.9,
		"options":     map[string]any{"b": nil, "c": 3},
	}

	merged, err := MergeParams(defaults, overrides)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", merged["model"])
	assert.Equal(t, 0.9, merged["temperature"])

	options, ok := merged["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), options["a"])
	assert.NotContains(t, options, "b")
	assert.Equal(t, float64(3), options["c"])
}

func TestMergeParams_EmptySides(t *testing.T) {
	merged, err := MergeParams(nil, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, merged)

	merged, err = MergeParams(map[string]any{"k": "v"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, merged)
}

func TestCompile_NilTemplate(t *testing.T) {
	_, err := Compile(nil, nil)
	assert.Error(t, err)
}

func nodeIDs(wf *graph.Workflow) []string {
	ids := make([]string, 0, len(wf.Nodes))
	for _, n := range wf.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func nodeByID(t *testing.T, wf *graph.Workflow, id string) *graph.Node {
	t.Helper()
	node := wf.Node(id)
	require.NotNil(t, node, "node %s not found", id)
	return node
}
