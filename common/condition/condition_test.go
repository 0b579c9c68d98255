package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_VariableEquals(t *testing.T) {
	expr, err := Parse("variable enable_memory equals true")
	require.NoError(t, err)

	env := &Env{Variables: map[string]any{"enable_memory": true}}
	assert.True(t, expr.Eval(env))

	env.Variables["enable_memory"] = false
	assert.False(t, expr.Eval(env))
}

func TestParse_VariableNotEquals(t *testing.T) {
	expr, err := Parse("variable mode not_equals fast")
	require.NoError(t, err)

	assert.True(t, expr.Eval(&Env{Variables: map[string]any{"mode": "slow"}}))
	assert.False(t, expr.Eval(&Env{Variables: map[string]any{"mode": "fast"}}))

	// Missing variable is not equal to anything
	assert.True(t, expr.Eval(&Env{Variables: map[string]any{}}))
}

func TestParse_ToolCallsAgainstLiteral(t *testing.T) {
	cases := []struct {
		expr  string
		count int
		want  bool
	}{
		{"tool_calls < 3", 2, true},
		{"tool_calls < 3", 3, false},
		{"tool_calls >= 2", 2, true},
		{"tool_calls == 0", 0, true},
		{"tool_calls > 5", 5, false},
	}

	for _, tc := range cases {
		expr, err := Parse(tc.expr)
		require.NoError(t, err, tc.expr)
		got := expr.Eval(&Env{ToolCallCount: tc.count})
		assert.Equal(t, tc.want, got, "%s with count=%d", tc.expr, tc.count)
	}
}

func TestParse_ToolCallsAgainstVariable(t *testing.T) {
	expr, err := Parse("tool_calls >= variable max_tool_calls")
	require.NoError(t, err)

	env := &Env{
		ToolCallCount: 2,
		Variables:     map[string]any{"max_tool_calls": 2},
	}
	assert.True(t, expr.Eval(env))

	env.ToolCallCount = 1
	assert.False(t, expr.Eval(env))
}

func TestParse_UnicodeComparison(t *testing.T) {
	expr, err := Parse("tool_calls ≥ variable max_tool_calls")
	require.NoError(t, err)

	env := &Env{ToolCallCount: 5, Variables: map[string]any{"max_tool_calls": 5.0}}
	assert.True(t, expr.Eval(env))
}

func TestParse_SyntheticFlags(t *testing.T) {
	has, err := Parse("has_tool_calls")
	require.NoError(t, err)
	no, err := Parse("no_tool_calls")
	require.NoError(t, err)

	assert.True(t, has.Eval(&Env{HasToolCalls: true}))
	assert.False(t, has.Eval(&Env{}))
	assert.True(t, no.Eval(&Env{}))
	assert.False(t, no.Eval(&Env{HasToolCalls: true}))
}

func TestParse_Logical(t *testing.T) {
	expr, err := Parse("variable enable_tools equals true AND has_tool_calls")
	require.NoError(t, err)

	env := &Env{
		Variables:    map[string]any{"enable_tools": true},
		HasToolCalls: true,
	}
	assert.True(t, expr.Eval(env))

	env.HasToolCalls = false
	assert.False(t, expr.Eval(env))

	expr, err = Parse("variable enable_tools equals false OR no_tool_calls")
	require.NoError(t, err)
	assert.True(t, expr.Eval(env))
}

func TestParse_LeftAssociative(t *testing.T) {
	// (false AND true) OR true => true under left-to-right evaluation
	expr, err := Parse("variable a equals 1 AND variable b equals 1 OR variable c equals 1")
	require.NoError(t, err)

	env := &Env{Variables: map[string]any{"a": 0, "b": 1, "c": 1}}
	assert.True(t, expr.Eval(env))
}

func TestParse_Malformed(t *testing.T) {
	for _, input := range []string{
		"",
		"variable",
		"variable x",
		"variable x equals",
		"variable x greater_than 3",
		"tool_calls",
		"tool_calls >",
		"tool_calls > banana",
		"tool_calls >= variable",
		"has_tool_calls AND",
		"bogus_term",
		"variable x equals y trailing",
	} {
		_, err := Parse(input)
		assert.Error(t, err, "expected parse error for %q", input)
	}
}

func TestParse_NumericLooseEquality(t *testing.T) {
	expr, err := Parse("variable retries equals 3")
	require.NoError(t, err)

	// JSON decoding yields float64; direct seeding yields int
	assert.True(t, expr.Eval(&Env{Variables: map[string]any{"retries": 3.0}}))
	assert.True(t, expr.Eval(&Env{Variables: map[string]any{"retries": 3}}))
	assert.False(t, expr.Eval(&Env{Variables: map[string]any{"retries": 4}}))
}

func TestEvaluator_Cache(t *testing.T) {
	e := NewEvaluator()

	ok, err := e.Evaluate("has_tool_calls", &Env{HasToolCalls: true})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, e.CacheSize())

	// Same expression reuses the cached program
	_, err = e.Evaluate("has_tool_calls", &Env{})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}
