package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/tools"
)

func linearWorkflow() *graph.Workflow {
	return &graph.Workflow{
		Nodes: []graph.Node{
			{ID: "start", Kind: graph.KindStart},
			{ID: "llm", Kind: graph.KindLLM, Config: map[string]any{
				"provider": "openai",
				"model":    "gpt-4o-mini",
			}},
			{ID: "end", Kind: graph.KindEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "llm", Kind: graph.EdgeDefault},
			{ID: "e2", Source: "llm", Target: "end", Kind: graph.EdgeDefault},
		},
	}
}

func fullCaps() capability.Set {
	return capability.FromWorkflowType(capability.TypeFull)
}

func testRegistry(t *testing.T, names ...string) tools.Registry {
	t.Helper()
	reg := tools.NewInMemoryRegistry()
	for _, name := range names {
		require.NoError(t, reg.Register(&tools.Tool{
			Name: name,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return "ok", nil
			},
		}))
	}
	return reg
}

func TestValidate_CleanGraphPasses(t *testing.T) {
	report := New(Limits{}).Validate(linearWorkflow(), fullCaps(), nil)
	assert.True(t, report.Valid())
	assert.Empty(t, report.AllErrors())
}

func TestValidate_StructureFindings(t *testing.T) {
	wf := &graph.Workflow{
		Nodes: []graph.Node{
			{ID: "start", Kind: graph.KindStart},
			{ID: "start2", Kind: graph.KindStart},
			{ID: "llm", Kind: graph.KindLLM, Config: map[string]any{"provider": "openai"}},
			{ID: "orphan", Kind: graph.KindLLM, Config: map[string]any{"provider": "openai", "model": "m"}},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "llm", Kind: graph.EdgeDefault},
			{ID: "e2", Source: "llm", Target: "ghost", Kind: graph.EdgeDefault},
			{ID: "e3", Source: "llm", Target: "llm", Kind: graph.EdgeDefault},
			{ID: "e4", Source: "orphan", Target: "llm", Kind: graph.EdgeConditional},
		},
	}

	report := New(Limits{}).Validate(wf, fullCaps(), nil)
	require.False(t, report.Valid())

	errs := strings.Join(report.Structure.Errors, "\n")
	assert.Contains(t, errs, "2 start nodes")
	assert.Contains(t, errs, "no end node")
	assert.Contains(t, errs, "unknown target node \"ghost\"")
	assert.Contains(t, errs, "self-loop")
	assert.Contains(t, errs, "missing required config key \"model\"")
	assert.Contains(t, errs, "carries no condition")
	assert.Contains(t, errs, "unreachable from start")
}

func TestValidate_UppercaseEndTargetRejected(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges[1].Target = "END"

	report := New(Limits{}).Validate(wf, fullCaps(), nil)
	require.False(t, report.Valid())
	assert.Contains(t, strings.Join(report.Structure.Errors, "\n"), `targets "END"`)
}

func TestValidate_MalformedConditionRejected(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges[1].Kind = graph.EdgeConditional
	wf.Edges[1].Condition = "variable equals"

	report := New(Limits{}).Validate(wf, fullCaps(), nil)
	assert.False(t, report.Valid())
	assert.Contains(t, strings.Join(report.Structure.Errors, "\n"), "does not parse")
}

func TestValidate_EarlyFatalDoesNotSkipLaterLayers(t *testing.T) {
	// Structure is broken (no end) AND a capability violation exists;
	// both must surface.
	wf := &graph.Workflow{
		Nodes: []graph.Node{
			{ID: "start", Kind: graph.KindStart},
			{ID: "retrieval", Kind: graph.KindRetrieval},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "retrieval", Kind: graph.EdgeDefault},
			{ID: "e2", Source: "retrieval", Target: "start", Kind: graph.EdgeDefault},
		},
	}
	caps := capability.FromWorkflowType(capability.TypePlain)

	report := New(Limits{}).Validate(wf, caps, nil)
	assert.NotEmpty(t, report.Structure.Errors)
	assert.Contains(t, strings.Join(report.Capability.Errors, "\n"), "requires enable_retrieval")
}

func TestValidate_SecurityDangerousPatterns(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"script tag", "hello <SCRIPT>alert(1)</script>"},
		{"javascript url", "JavaScript:void(0)"},
		{"backtick", "run `rm -rf`"},
		{"null byte", "abc\x00def"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wf := linearWorkflow()
			wf.Nodes[1].Config["system_prompt"] = tc.value

			report := New(Limits{}).Validate(wf, fullCaps(), nil)
			assert.False(t, report.Valid())
			assert.Contains(t, strings.Join(report.Security.Errors, "\n"), "forbidden pattern")
		})
	}
}

func TestValidate_SecurityValueAndKeyCaps(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[1].Config["system_prompt"] = strings.Repeat("a", 201)
	wf.Nodes[1].Config[strings.Repeat("k", 51)] = "v"
	wf.Nodes[1].Config["bad-key!"] = "v"

	report := New(Limits{}).Validate(wf, fullCaps(), nil)
	errs := strings.Join(report.Security.Errors, "\n")
	assert.Contains(t, errs, "exceeds 200 characters")
	assert.Contains(t, errs, "exceeds 50 characters")
	assert.Contains(t, errs, "outside [a-zA-Z0-9_]")
}

func TestValidate_SecurityArrayCap(t *testing.T) {
	items := make([]any, 11)
	for i := range items {
		items[i] = "x"
	}
	wf := linearWorkflow()
	wf.Nodes[1].Config["stop_sequences"] = items

	report := New(Limits{}).Validate(wf, fullCaps(), nil)
	assert.Contains(t, strings.Join(report.Security.Errors, "\n"), "11 items")
}

func TestValidate_HTTPCommandNeedsWebSearch(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[1].Config["system_prompt"] = "fetch https://example.com/data"

	report := New(Limits{}).Validate(wf, fullCaps(), nil)
	assert.Contains(t, strings.Join(report.Security.Errors, "\n"), "enable_web_search")

	caps := fullCaps()
	caps.EnableWebSearch = true
	report = New(Limits{}).Validate(wf, caps, nil)
	assert.True(t, report.Valid())
}

func TestValidate_ToolNamesAgainstRegistry(t *testing.T) {
	wf := &graph.Workflow{
		Nodes: []graph.Node{
			{ID: "start", Kind: graph.KindStart},
			{ID: "tools", Kind: graph.KindTools, Config: map[string]any{
				"available_tools": []any{"calculator", "missing"},
			}},
			{ID: "end", Kind: graph.KindEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "tools", Kind: graph.EdgeDefault},
			{ID: "e2", Source: "tools", Target: "end", Kind: graph.EdgeDefault},
		},
	}

	report := New(Limits{}).Validate(wf, fullCaps(), testRegistry(t, "calculator"))
	require.False(t, report.Valid())
	errs := strings.Join(report.Security.Errors, "\n")
	assert.Contains(t, errs, `unregistered tool "missing"`)
	assert.NotContains(t, errs, `"calculator"`)

	// Without a registry the check degrades to a warning
	report = New(Limits{}).Validate(wf, fullCaps(), nil)
	assert.Empty(t, report.Security.Errors)
	assert.NotEmpty(t, report.Security.Warnings)
}

func TestValidate_CapabilityGatesAndCeilings(t *testing.T) {
	wf := &graph.Workflow{
		Nodes: []graph.Node{
			{ID: "start", Kind: graph.KindStart},
			{ID: "retrieval", Kind: graph.KindRetrieval, Config: map[string]any{
				"max_documents": 50,
			}},
			{ID: "tools", Kind: graph.KindTools, Config: map[string]any{}},
			{ID: "end", Kind: graph.KindEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "retrieval", Kind: graph.EdgeDefault},
			{ID: "e2", Source: "retrieval", Target: "tools", Kind: graph.EdgeDefault},
			{ID: "e3", Source: "tools", Target: "end", Kind: graph.EdgeDefault},
		},
	}

	caps := capability.FromWorkflowType(capability.TypeRAG) // no tools, max_documents=10

	report := New(Limits{}).Validate(wf, caps, nil)
	errs := strings.Join(report.Capability.Errors, "\n")
	assert.Contains(t, errs, "requires enable_tools")
	assert.Contains(t, errs, "max_documents=50")
}

func TestValidate_ResourceCeilings(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, graph.Node{
		ID:   "loop",
		Kind: graph.KindLoop,
		Config: map[string]any{
			"max_iterations": 5000,
		},
	})
	wf.Edges = append(wf.Edges,
		graph.Edge{ID: "e3", Source: "llm", Target: "loop", Kind: graph.EdgeDefault},
		graph.Edge{ID: "e4", Source: "loop", Target: "end", Kind: graph.EdgeDefault},
	)
	wf.Nodes[1].Config["max_tokens"] = 200000

	report := New(Limits{}).Validate(wf, fullCaps(), nil)
	errs := strings.Join(report.Resource.Errors, "\n")
	assert.Contains(t, errs, "exceeds the hard cap 1000")
	assert.Contains(t, errs, "aggregate max_tokens")
}

func TestValidate_NodeCountCeiling(t *testing.T) {
	wf := &graph.Workflow{}
	wf.Nodes = append(wf.Nodes, graph.Node{ID: "start", Kind: graph.KindStart})
	for i := 0; i < 5; i++ {
		wf.Nodes = append(wf.Nodes, graph.Node{
			ID: "llm" + string(rune('a'+i)), Kind: graph.KindLLM,
			Config: map[string]any{"provider": "openai", "model": "m"},
		})
	}
	wf.Nodes = append(wf.Nodes, graph.Node{ID: "end", Kind: graph.KindEnd})

	prev := "start"
	for i, node := range wf.Nodes[1:] {
		wf.Edges = append(wf.Edges, graph.Edge{
			ID: "e" + string(rune('a'+i)), Source: prev, Target: node.ID, Kind: graph.EdgeDefault,
		})
		prev = node.ID
	}

	report := New(Limits{MaxNodes: 5}).Validate(wf, fullCaps(), nil)
	assert.Contains(t, strings.Join(report.Resource.Errors, "\n"), "max is 5")
}

func TestValidate_Deterministic(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[1].Config["system_prompt"] = "run `thing`"

	v := New(Limits{})
	first := v.Validate(wf, fullCaps(), nil)
	second := v.Validate(wf, fullCaps(), nil)
	assert.Equal(t, first, second)
}
