package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/graph"
)

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestExecutionStatus_TransitionsAreMonotonic(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusRunning))
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.True(t, StatusRunning.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusRunning.CanTransitionTo(StatusCancelled))

	// No backward moves, no self transitions, nothing out of terminal
	assert.False(t, StatusRunning.CanTransitionTo(StatusPending))
	assert.False(t, StatusRunning.CanTransitionTo(StatusRunning))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusRunning))
	assert.False(t, StatusFailed.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusPending))
}

func TestExecutionRecord_Validate(t *testing.T) {
	rec := &ExecutionRecord{ID: "x", OwnerID: "u", Status: StatusPending}
	require.NoError(t, rec.Validate())

	assert.Error(t, (&ExecutionRecord{OwnerID: "u", Status: StatusPending}).Validate())
	assert.Error(t, (&ExecutionRecord{ID: "x", Status: StatusPending}).Validate())
	assert.Error(t, (&ExecutionRecord{ID: "x", OwnerID: "u", Status: "paused"}).Validate())
	assert.Error(t, (&ExecutionRecord{ID: "x", OwnerID: "u", Status: StatusPending, TokensUsed: -1}).Validate())
	assert.Error(t, (&ExecutionRecord{ID: "x", OwnerID: "u", Status: StatusPending, Cost: -0.01}).Validate())
}

func TestWorkflowTemplate_Validate(t *testing.T) {
	tpl := &WorkflowTemplate{Name: "chat", Version: 1}
	require.NoError(t, tpl.Validate())

	assert.Error(t, (&WorkflowTemplate{Version: 1}).Validate())
	assert.Error(t, (&WorkflowTemplate{Name: "chat", Version: 0}).Validate())
	assert.Error(t, (&WorkflowTemplate{Name: "chat", Version: 1, Rating: 5.5}).Validate())
	assert.Error(t, (&WorkflowTemplate{Name: "chat", Version: 1, SuccessRate: 1.2}).Validate())
}

func TestWorkflowTemplate_Capabilities(t *testing.T) {
	tpl := &WorkflowTemplate{
		Name:          "helper",
		WorkflowType:  capability.TypePlain,
		RequiredTools: []string{"calculator"},
		Version:       1,
	}

	caps := tpl.Capabilities()
	assert.True(t, caps.EnableTools, "required tools imply the tools capability")
	assert.Equal(t, 10, caps.MaxToolCalls)
}

func TestComputeConfigHash_Stable(t *testing.T) {
	tpl := &WorkflowTemplate{
		Name:          "chat",
		WorkflowType:  capability.TypeTools,
		DefaultParams: map[string]any{"temperature": 0.7, "model": "gpt-4o-mini"},
		RequiredTools: []string{"web_search", "calculator"},
		Version:       2,
	}

	first := tpl.ComputeConfigHash()
	assert.Len(t, first, 64)
	assert.Equal(t, first, tpl.ComputeConfigHash())

	// Tool order must not change the hash
	reordered := *tpl
	reordered.RequiredTools = []string{"calculator", "web_search"}
	assert.Equal(t, first, reordered.ComputeConfigHash())

	// Content changes must
	bumped := *tpl
	bumped.Version = 3
	assert.NotEqual(t, first, bumped.ComputeConfigHash())
}

func TestWorkflowDefinition_Validate(t *testing.T) {
	def := &WorkflowDefinition{
		ID:      "d1",
		OwnerID: "u1",
		Name:    "custom",
		Nodes:   []graph.Node{{ID: "start", Kind: graph.KindStart}},
	}
	require.NoError(t, def.Validate())

	assert.Error(t, (&WorkflowDefinition{OwnerID: "u1", Name: "n", Nodes: def.Nodes}).Validate())
	assert.Error(t, (&WorkflowDefinition{ID: "d1", Name: "n", Nodes: def.Nodes}).Validate())
	assert.Error(t, (&WorkflowDefinition{ID: "d1", OwnerID: "u1", Nodes: def.Nodes}).Validate())
	assert.Error(t, (&WorkflowDefinition{ID: "d1", OwnerID: "u1", Name: "n"}).Validate())
}

func TestWorkflowDefinition_WorkflowCopiesSlices(t *testing.T) {
	def := &WorkflowDefinition{
		ID:      "d1",
		OwnerID: "u1",
		Name:    "custom",
		Nodes: []graph.Node{
			{ID: "start", Kind: graph.KindStart},
			{ID: "end", Kind: graph.KindEnd},
		},
		Edges: []graph.Edge{{ID: "e1", Source: "start", Target: "end"}},
	}

	wf := def.Workflow()
	wf.Nodes[0].ID = "mutated"
	assert.Equal(t, "start", def.Nodes[0].ID)
	assert.Len(t, wf.Edges, 1)
}
