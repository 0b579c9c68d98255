package ratelimit

import "github.com/aether-ai/conductor/common/graph"

// Tier classifies a workflow by how many model nodes it runs. Model
// invocations dominate both latency and cost, so the tier tracks them
// rather than raw node count.
type Tier string

const (
	TierSimple   Tier = "simple"   // no model nodes
	TierStandard Tier = "standard" // 1-2 model nodes
	TierHeavy    Tier = "heavy"    // 3+ model nodes
)

// Profile is the weight analysis of one workflow graph
type Profile struct {
	Tier          Tier
	ModelNodes    int
	ToolNodes     int
	HasModelNodes bool
	TotalNodes    int
}

// Inspect classifies a workflow graph into a rate limit tier
func Inspect(wf *graph.Workflow) Profile {
	profile := Profile{
		Tier:       TierSimple,
		TotalNodes: len(wf.Nodes),
	}

	for i := range wf.Nodes {
		switch {
		case wf.Nodes[i].Kind.IsModel():
			profile.ModelNodes++
			profile.HasModelNodes = true
		case wf.Nodes[i].Kind.IsTool():
			profile.ToolNodes++
		}
	}

	profile.Tier = tierFor(profile.ModelNodes)
	return profile
}

func tierFor(modelNodes int) Tier {
	switch {
	case modelNodes == 0:
		return TierSimple
	case modelNodes <= 2:
		return TierStandard
	default:
		return TierHeavy
	}
}
