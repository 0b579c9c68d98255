// Package capability defines the declarative feature flags and numeric
// limits that shape what a workflow execution may do. A Set is pure data:
// deriving, merging, and classifying perform no I/O and are deterministic.
package capability

import "encoding/json"

// WorkflowType classifies a workflow by the capabilities it exercises
type WorkflowType string

const (
	TypePlain         WorkflowType = "plain"
	TypeTools         WorkflowType = "tools"
	TypeRAG           WorkflowType = "rag"
	TypeFull          WorkflowType = "full"
	TypeUniversalChat WorkflowType = "universal_chat"
	TypeCustom        WorkflowType = "custom"
)

// Set holds the feature flags and limits for one workflow
type Set struct {
	EnableRetrieval bool `json:"enable_retrieval"`
	EnableTools     bool `json:"enable_tools"`
	EnableMemory    bool `json:"enable_memory"`
	EnableWebSearch bool `json:"enable_web_search"`
	EnableStreaming bool `json:"enable_streaming"`
	EnableCaching   bool `json:"enable_caching"`
	EnableTracing   bool `json:"enable_tracing"`

	MaxToolCalls int `json:"max_tool_calls"`
	MaxDocuments int `json:"max_documents"`
	MemoryWindow int `json:"memory_window"`

	Extensions map[string]any `json:"extensions,omitempty"`
}

// FromWorkflowType returns the preset for a workflow type.
// Unknown types fall back to the plain preset.
func FromWorkflowType(t WorkflowType) Set {
	switch t {
	case TypeRAG:
		return Set{
			EnableRetrieval: true,
			EnableMemory:    true,
			MaxDocuments:    10,
			MemoryWindow:    30,
		}
	case TypeTools:
		return Set{
			EnableTools:  true,
			EnableMemory: true,
			MaxToolCalls: 10,
			MemoryWindow: 100,
		}
	case TypeFull, TypeUniversalChat:
		return Set{
			EnableRetrieval: true,
			EnableTools:     true,
			EnableMemory:    true,
			MaxToolCalls:    5,
			MaxDocuments:    10,
			MemoryWindow:    50,
		}
	default:
		return Set{EnableMemory: true, MemoryWindow: 20}
	}
}

// FromTemplateConfiguration infers capabilities from a template's declared
// requirements: flags come from list non-emptiness, limits from the
// matching preset.
func FromTemplateConfiguration(requiredTools, requiredRetrievers []string) Set {
	hasTools := len(requiredTools) > 0
	hasRetrievers := len(requiredRetrievers) > 0

	switch {
	case hasTools && hasRetrievers:
		return FromWorkflowType(TypeFull)
	case hasTools:
		return FromWorkflowType(TypeTools)
	case hasRetrievers:
		return FromWorkflowType(TypeRAG)
	default:
		return FromWorkflowType(TypePlain)
	}
}

// MergeWith combines two sets: union of flags, max of limits, extension
// overlay where other wins on conflict. Merging is commutative for flags
// and limits and idempotent overall.
func (s Set) MergeWith(other Set) Set {
	merged := Set{
		EnableRetrieval: s.EnableRetrieval || other.EnableRetrieval,
		EnableTools:     s.EnableTools || other.EnableTools,
		EnableMemory:    s.EnableMemory || other.EnableMemory,
		EnableWebSearch: s.EnableWebSearch || other.EnableWebSearch,
		EnableStreaming: s.EnableStreaming || other.EnableStreaming,
		EnableCaching:   s.EnableCaching || other.EnableCaching,
		EnableTracing:   s.EnableTracing || other.EnableTracing,
		MaxToolCalls:    maxInt(s.MaxToolCalls, other.MaxToolCalls),
		MaxDocuments:    maxInt(s.MaxDocuments, other.MaxDocuments),
		MemoryWindow:    maxInt(s.MemoryWindow, other.MemoryWindow),
	}

	if len(s.Extensions) > 0 || len(other.Extensions) > 0 {
		merged.Extensions = make(map[string]any, len(s.Extensions)+len(other.Extensions))
		for k, v := range s.Extensions {
			merged.Extensions[k] = v
		}
		for k, v := range other.Extensions {
			merged.Extensions[k] = v
		}
	}

	return merged
}

// WorkflowTypeOf classifies the set for reporting. This is the single
// source of truth for the workflow_type of an execution result.
func (s Set) WorkflowTypeOf() WorkflowType {
	switch {
	case s.EnableRetrieval && s.EnableTools:
		return TypeFull
	case s.EnableTools:
		return TypeTools
	case s.EnableRetrieval:
		return TypeRAG
	default:
		return TypePlain
	}
}

// Normalize clamps negative limits to zero. Limits are non-negative by
// invariant; inline requests may carry junk.
func (s Set) Normalize() Set {
	if s.MaxToolCalls < 0 {
		s.MaxToolCalls = 0
	}
	if s.MaxDocuments < 0 {
		s.MaxDocuments = 0
	}
	if s.MemoryWindow < 0 {
		s.MemoryWindow = 0
	}
	return s
}

// Serialize returns the canonical JSON form
func (s Set) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

// Variables returns the set flattened for seeding workflow variables.
// The universal-chat template's set-capabilities node consumes this.
func (s Set) Variables() map[string]any {
	return map[string]any{
		"enable_retrieval": s.EnableRetrieval,
		"enable_tools":     s.EnableTools,
		"enable_memory":    s.EnableMemory,
		"enable_web_search": s.EnableWebSearch,
		"max_tool_calls":   s.MaxToolCalls,
		"max_documents":    s.MaxDocuments,
		"memory_window":    s.MemoryWindow,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
