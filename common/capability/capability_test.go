package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromWorkflowType_Presets(t *testing.T) {
	plain := FromWorkflowType(TypePlain)
	assert.False(t, plain.EnableRetrieval)
	assert.False(t, plain.EnableTools)
	assert.True(t, plain.EnableMemory)
	assert.Equal(t, 20, plain.MemoryWindow)

	rag := FromWorkflowType(TypeRAG)
	assert.True(t, rag.EnableRetrieval)
	assert.False(t, rag.EnableTools)
	assert.Equal(t, 10, rag.MaxDocuments)

	tools := FromWorkflowType(TypeTools)
	assert.True(t, tools.EnableTools)
	assert.Equal(t, 10, tools.MaxToolCalls)
	assert.Equal(t, 100, tools.MemoryWindow)

	full := FromWorkflowType(TypeFull)
	assert.True(t, full.EnableRetrieval)
	assert.True(t, full.EnableTools)
	assert.Equal(t, 5, full.MaxToolCalls)

	assert.Equal(t, full, FromWorkflowType(TypeUniversalChat))
	assert.Equal(t, plain, FromWorkflowType(WorkflowType("nonsense")))
}

func TestFromTemplateConfiguration(t *testing.T) {
	assert.Equal(t, FromWorkflowType(TypeFull),
		FromTemplateConfiguration([]string{"calculator"}, []string{"docs"}))
	assert.Equal(t, FromWorkflowType(TypeTools),
		FromTemplateConfiguration([]string{"calculator"}, nil))
	assert.Equal(t, FromWorkflowType(TypeRAG),
		FromTemplateConfiguration(nil, []string{"docs"}))
	assert.Equal(t, FromWorkflowType(TypePlain),
		FromTemplateConfiguration(nil, nil))
}

func TestMergeWith_CommutativeAndIdempotent(t *testing.T) {
	a := FromWorkflowType(TypeRAG)
	b := FromWorkflowType(TypeTools)

	ab := a.MergeWith(b)
	ba := b.MergeWith(a)
	assert.Equal(t, ab, ba)

	assert.True(t, ab.EnableRetrieval)
	assert.True(t, ab.EnableTools)
	assert.Equal(t, 10, ab.MaxToolCalls)
	assert.Equal(t, 100, ab.MemoryWindow)

	assert.Equal(t, a, a.MergeWith(a))
}

func TestMergeWith_ExtensionsOtherWins(t *testing.T) {
	a := Set{Extensions: map[string]any{"region": "us", "shared": "a"}}
	b := Set{Extensions: map[string]any{"shared": "b"}}

	merged := a.MergeWith(b)
	assert.Equal(t, "us", merged.Extensions["region"])
	assert.Equal(t, "b", merged.Extensions["shared"])
}

func TestWorkflowTypeOf(t *testing.T) {
	assert.Equal(t, TypePlain, Set{}.WorkflowTypeOf())
	assert.Equal(t, TypeRAG, Set{EnableRetrieval: true}.WorkflowTypeOf())
	assert.Equal(t, TypeTools, Set{EnableTools: true}.WorkflowTypeOf())
	assert.Equal(t, TypeFull, Set{EnableRetrieval: true, EnableTools: true}.WorkflowTypeOf())
}

func TestNormalize_ClampsNegativeLimits(t *testing.T) {
	s := Set{MaxToolCalls: -3, MaxDocuments: -1, MemoryWindow: 7}.Normalize()
	assert.Equal(t, 0, s.MaxToolCalls)
	assert.Equal(t, 0, s.MaxDocuments)
	assert.Equal(t, 7, s.MemoryWindow)
}

func TestVariables_FlattensFlagsAndLimits(t *testing.T) {
	vars := FromWorkflowType(TypeTools).Variables()
	assert.Equal(t, true, vars["enable_tools"])
	assert.Equal(t, false, vars["enable_retrieval"])
	assert.Equal(t, 10, vars["max_tool_calls"])
	assert.Equal(t, 100, vars["memory_window"])
}
