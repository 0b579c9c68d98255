// Package registry is the process-wide catalog of node kinds: display
// names, categories, and property schemas. The catalog is pure data; the
// validator enforces required keys, the engine dispatches on kind. The
// per-kind RequiredConfig/OptionalConfig/Examples metadata exists for
// editor consumption only.
package registry

import "github.com/aether-ai/conductor/common/graph"

// Category groups node kinds for editor palettes
type Category string

const (
	CategoryControl    Category = "control"
	CategoryProcessing Category = "processing"
	CategoryData       Category = "data"
	CategoryStorage    Category = "storage"
	CategoryUtility    Category = "utility"
)

// PropertyType is the declared type of a config property
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeText    PropertyType = "text"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
	TypeSelect  PropertyType = "select"
	TypeArray   PropertyType = "array"
	TypeObject  PropertyType = "object"
	TypeAny     PropertyType = "any"
)

// Property describes one config key of a node kind
type Property struct {
	Name        string       `json:"name"`
	Type        PropertyType `json:"type"`
	Required    bool         `json:"required"`
	Options     []string     `json:"options,omitempty"`
	Description string       `json:"description,omitempty"`
}

// Entry describes one node kind
type Entry struct {
	Kind        graph.NodeKind `json:"kind"`
	DisplayName string         `json:"display_name"`
	Category    Category       `json:"category"`
	Properties  []Property     `json:"properties"`

	// Editor-facing metadata; the engine never consults these.
	RequiredConfig []string         `json:"required_config,omitempty"`
	OptionalConfig []string         `json:"optional_config,omitempty"`
	Examples       []map[string]any `json:"examples,omitempty"`
}

var catalog = []Entry{
	{
		Kind:        graph.KindStart,
		DisplayName: "Start",
		Category:    CategoryControl,
		Properties:  []Property{},
	},
	{
		Kind:        graph.KindEnd,
		DisplayName: "End",
		Category:    CategoryControl,
		Properties:  []Property{},
	},
	{
		Kind:        graph.KindLLM,
		DisplayName: "Language Model",
		Category:    CategoryProcessing,
		Properties: []Property{
			{Name: "provider", Type: TypeString, Required: true, Description: "Model provider name"},
			{Name: "model", Type: TypeString, Required: true, Description: "Model identifier"},
			{Name: "temperature", Type: TypeNumber, Required: false, Description: "Sampling temperature in [0,2]"},
			{Name: "max_tokens", Type: TypeNumber, Required: false, Description: "Completion token cap"},
			{Name: "system_prompt", Type: TypeText, Required: false, Description: "System prompt prepended to the conversation"},
			{Name: "system_message", Type: TypeText, Required: false, Description: "Legacy spelling of system_prompt"},
		},
		RequiredConfig: []string{"provider", "model"},
		OptionalConfig: []string{"temperature", "max_tokens", "system_prompt"},
		Examples: []map[string]any{
			{"provider": "openai", "model": "gpt-4o-mini", "temperature": 0.7},
		},
	},
	{
		Kind:        graph.KindModel,
		DisplayName: "Model (legacy)",
		Category:    CategoryProcessing,
		Properties: []Property{
			{Name: "provider", Type: TypeString, Required: true},
			{Name: "model", Type: TypeString, Required: true},
			{Name: "temperature", Type: TypeNumber, Required: false},
			{Name: "max_tokens", Type: TypeNumber, Required: false},
			{Name: "system_message", Type: TypeText, Required: false},
		},
		RequiredConfig: []string{"provider", "model"},
	},
	{
		Kind:        graph.KindTools,
		DisplayName: "Tools",
		Category:    CategoryProcessing,
		Properties: []Property{
			{Name: "available_tools", Type: TypeArray, Required: false, Description: "Tool names callable from this node"},
			{Name: "tool_name", Type: TypeString, Required: false, Description: "Single tool shorthand"},
			{Name: "parameters", Type: TypeObject, Required: false},
			{Name: "tool_timeout_ms", Type: TypeNumber, Required: false, Description: "Per-call timeout, default 30000"},
			{Name: "parallel_calls", Type: TypeBoolean, Required: false},
		},
		OptionalConfig: []string{"available_tools", "tool_name", "parameters", "tool_timeout_ms", "parallel_calls"},
	},
	{
		Kind:        graph.KindTool,
		DisplayName: "Tool (legacy)",
		Category:    CategoryProcessing,
		Properties: []Property{
			{Name: "tool_name", Type: TypeString, Required: true},
			{Name: "parameters", Type: TypeObject, Required: false},
			{Name: "tool_timeout_ms", Type: TypeNumber, Required: false},
		},
		RequiredConfig: []string{"tool_name"},
	},
	{
		Kind:        graph.KindRetrieval,
		DisplayName: "Document Retrieval",
		Category:    CategoryData,
		Properties: []Property{
			{Name: "query", Type: TypeText, Required: false, Description: "Defaults to the last user message"},
			{Name: "limit", Type: TypeNumber, Required: false, Description: "Top-k documents, bounded by max_documents"},
			{Name: "score_threshold", Type: TypeNumber, Required: false, Description: "Minimum similarity score in [0,1]"},
			{Name: "collection", Type: TypeString, Required: false},
		},
		OptionalConfig: []string{"query", "limit", "score_threshold", "collection"},
	},
	{
		Kind:        graph.KindMemory,
		DisplayName: "Conversation Memory",
		Category:    CategoryStorage,
		Properties: []Property{
			{Name: "memory_window", Type: TypeNumber, Required: true, Description: "Messages kept verbatim; older ones are summarized"},
		},
		RequiredConfig: []string{"memory_window"},
	},
	{
		Kind:        graph.KindConditional,
		DisplayName: "Conditional",
		Category:    CategoryControl,
		Properties: []Property{
			{Name: "condition", Type: TypeText, Required: true, Description: "Guard expression; see the condition language"},
		},
		RequiredConfig: []string{"condition"},
		Examples: []map[string]any{
			{"condition": "variable enable_tools equals true AND has_tool_calls"},
		},
	},
	{
		Kind:        graph.KindLoop,
		DisplayName: "Loop",
		Category:    CategoryControl,
		Properties: []Property{
			{Name: "max_iterations", Type: TypeNumber, Required: true, Description: "Hard iteration cap"},
			{Name: "condition", Type: TypeText, Required: false, Description: "Continue while true"},
		},
		RequiredConfig: []string{"max_iterations"},
		OptionalConfig: []string{"condition"},
	},
	{
		Kind:        graph.KindVariable,
		DisplayName: "Variable",
		Category:    CategoryUtility,
		Properties: []Property{
			{Name: "operation", Type: TypeSelect, Required: true, Options: []string{"set", "get", "append", "increment", "decrement"}},
			{Name: "variable_name", Type: TypeString, Required: true},
			{Name: "value", Type: TypeAny, Required: false},
		},
		RequiredConfig: []string{"operation", "variable_name"},
		OptionalConfig: []string{"value"},
	},
	{
		Kind:        graph.KindErrorHandler,
		DisplayName: "Error Handler",
		Category:    CategoryControl,
		Properties: []Property{
			{Name: "retry_count", Type: TypeNumber, Required: true, Description: "Retries before the fallback edge is taken"},
			{Name: "fallback_action", Type: TypeString, Required: false},
		},
		RequiredConfig: []string{"retry_count"},
		OptionalConfig: []string{"fallback_action"},
	},
	{
		Kind:        graph.KindDelay,
		DisplayName: "Delay",
		Category:    CategoryUtility,
		Properties: []Property{
			{Name: "delay_type", Type: TypeSelect, Required: true, Options: []string{"fixed", "random", "exponential", "dynamic"}},
			{Name: "duration", Type: TypeNumber, Required: true, Description: "Milliseconds"},
			{Name: "max_duration", Type: TypeNumber, Required: false, Description: "Cap for random/exponential"},
		},
		RequiredConfig: []string{"delay_type", "duration"},
		OptionalConfig: []string{"max_duration"},
	},
}

var byKind = func() map[graph.NodeKind]*Entry {
	m := make(map[graph.NodeKind]*Entry, len(catalog))
	for i := range catalog {
		m[catalog[i].Kind] = &catalog[i]
	}
	return m
}()

// Entries returns the full catalog in declaration order
func Entries() []Entry {
	out := make([]Entry, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the entry for a kind, or nil for unknown kinds
func Lookup(kind graph.NodeKind) *Entry {
	return byKind[kind]
}

// RequiredProperties returns the required property names for a kind
func RequiredProperties(kind graph.NodeKind) []string {
	entry := byKind[kind]
	if entry == nil {
		return nil
	}
	var required []string
	for _, p := range entry.Properties {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return required
}
