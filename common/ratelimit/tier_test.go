package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aether-ai/conductor/common/graph"
)

func wfWithKinds(kinds ...graph.NodeKind) *graph.Workflow {
	wf := &graph.Workflow{}
	for i, k := range kinds {
		wf.Nodes = append(wf.Nodes, graph.Node{ID: string(rune('a' + i)), Kind: k})
	}
	return wf
}

func TestInspect_TierByModelNodes(t *testing.T) {
	tests := []struct {
		name  string
		wf    *graph.Workflow
		tier  Tier
		model int
	}{
		{
			name: "no model nodes is simple",
			wf:   wfWithKinds(graph.KindStart, graph.KindVariable, graph.KindEnd),
			tier: TierSimple,
		},
		{
			name:  "single llm is standard",
			wf:    wfWithKinds(graph.KindStart, graph.KindLLM, graph.KindEnd),
			tier:  TierStandard,
			model: 1,
		},
		{
			name:  "two model nodes stay standard",
			wf:    wfWithKinds(graph.KindStart, graph.KindLLM, graph.KindModel, graph.KindEnd),
			tier:  TierStandard,
			model: 2,
		},
		{
			name:  "three model nodes are heavy",
			wf:    wfWithKinds(graph.KindLLM, graph.KindModel, graph.KindLLM),
			tier:  TierHeavy,
			model: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := Inspect(tt.wf)
			assert.Equal(t, tt.tier, profile.Tier)
			assert.Equal(t, tt.model, profile.ModelNodes)
			assert.Equal(t, len(tt.wf.Nodes), profile.TotalNodes)
		})
	}
}

func TestInspect_CountsToolNodes(t *testing.T) {
	profile := Inspect(wfWithKinds(graph.KindStart, graph.KindLLM, graph.KindTools, graph.KindEnd))
	assert.Equal(t, 1, profile.ToolNodes)
	assert.True(t, profile.HasModelNodes)
}

func TestLimitForTier_UnknownFallsBackToHeavy(t *testing.T) {
	assert.Equal(t, DefaultTierConfigs[TierHeavy].Limit, LimitForTier(Tier("bogus")))
	assert.Equal(t, DefaultTierConfigs[TierHeavy].WindowSeconds, WindowForTier(Tier("bogus")))
}

func TestAllTiers_OrderedSimpleToHeavy(t *testing.T) {
	tiers := AllTiers()
	assert.Len(t, tiers, 3)
	assert.Equal(t, TierSimple, tiers[0].Tier)
	assert.Equal(t, TierHeavy, tiers[2].Tier)
	assert.Greater(t, tiers[0].Limit, tiers[2].Limit)
}
