// Package condition implements the small guard language used on workflow
// edges and conditional nodes:
//
//	condition := term (("AND"|"OR") term)*
//	term      := "variable" IDENT ("equals"|"not_equals") VALUE
//	           | "tool_calls" CMP (NUMBER | "variable" IDENT)
//	           | "has_tool_calls"
//	           | "no_tool_calls"
//	CMP       := "<" | "<=" | ">=" | ">" | "=="
//
// Expressions are parsed once at graph-compile time into a tiny AST and
// interpreted per evaluation. AND and OR share one precedence level and
// associate left to right.
package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Env is the read-only state a condition evaluates against
type Env struct {
	Variables     map[string]any
	ToolCallCount int
	HasToolCalls  bool
}

// Expr is a parsed condition
type Expr interface {
	Eval(env *Env) bool
}

type logicalExpr struct {
	left  Expr
	op    string // "AND" | "OR"
	right Expr
}

func (e *logicalExpr) Eval(env *Env) bool {
	if e.op == "AND" {
		return e.left.Eval(env) && e.right.Eval(env)
	}
	return e.left.Eval(env) || e.right.Eval(env)
}

type variableTerm struct {
	name   string
	negate bool // true for not_equals
	value  string
}

func (t *variableTerm) Eval(env *Env) bool {
	got, ok := env.Variables[t.name]
	equal := ok && looseEqual(got, t.value)
	if t.negate {
		return !equal
	}
	return equal
}

type toolCallsTerm struct {
	op      string // "<" "<=" ">=" ">" "=="
	literal int
	varName string // compares against a variable when non-empty
}

func (t *toolCallsTerm) Eval(env *Env) bool {
	want := t.literal
	if t.varName != "" {
		want = intVar(env.Variables[t.varName])
	}

	switch t.op {
	case "<":
		return env.ToolCallCount < want
	case "<=":
		return env.ToolCallCount <= want
	case ">=":
		return env.ToolCallCount >= want
	case ">":
		return env.ToolCallCount > want
	default:
		return env.ToolCallCount == want
	}
}

type hasToolCallsTerm struct {
	negate bool
}

func (t *hasToolCallsTerm) Eval(env *Env) bool {
	if t.negate {
		return !env.HasToolCalls
	}
	return env.HasToolCalls
}

// Parse compiles a condition string. Malformed input is a compile-time
// error surfaced by validation Layer 1.
func Parse(input string) (Expr, error) {
	tokens := lex(input)
	p := &parser{tokens: tokens}

	expr, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("condition %q: unexpected token %q", input, p.peek())
	}
	return expr, nil
}

func lex(input string) []string {
	// Unicode comparison spellings normalize to ASCII before splitting
	replacer := strings.NewReplacer("≥", ">=", "≤", "<=")
	return strings.Fields(replacer.Replace(input))
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *parser) parseCondition() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for !p.done() {
		op := p.peek()
		if op != "AND" && op != "OR" {
			break
		}
		p.next()

		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{left: left, op: op, right: right}
	}

	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	switch tok := p.next(); tok {
	case "variable":
		name := p.next()
		if name == "" {
			return nil, fmt.Errorf("expected variable name")
		}
		op := p.next()
		if op != "equals" && op != "not_equals" {
			return nil, fmt.Errorf("expected equals or not_equals, got %q", op)
		}
		value := p.next()
		if value == "" {
			return nil, fmt.Errorf("expected comparison value for variable %s", name)
		}
		return &variableTerm{name: name, negate: op == "not_equals", value: value}, nil

	case "tool_calls":
		op := p.next()
		switch op {
		case "<", "<=", ">=", ">", "==":
		default:
			return nil, fmt.Errorf("expected comparison operator after tool_calls, got %q", op)
		}

		operand := p.next()
		if operand == "variable" {
			name := p.next()
			if name == "" {
				return nil, fmt.Errorf("expected variable name after tool_calls %s variable", op)
			}
			return &toolCallsTerm{op: op, varName: name}, nil
		}

		n, err := strconv.Atoi(operand)
		if err != nil {
			return nil, fmt.Errorf("expected number after tool_calls %s, got %q", op, operand)
		}
		return &toolCallsTerm{op: op, literal: n}, nil

	case "has_tool_calls":
		return &hasToolCallsTerm{}, nil

	case "no_tool_calls":
		return &hasToolCallsTerm{negate: true}, nil

	case "":
		return nil, fmt.Errorf("empty condition")

	default:
		return nil, fmt.Errorf("unexpected token %q", tok)
	}
}

// looseEqual compares a runtime variable with a literal token: numeric
// comparison when both sides parse as numbers, boolean comparison for
// true/false, string comparison otherwise.
func looseEqual(got any, literal string) bool {
	switch v := got.(type) {
	case bool:
		b, err := strconv.ParseBool(literal)
		return err == nil && v == b
	case string:
		return v == literal
	case int:
		n, err := strconv.Atoi(literal)
		return err == nil && v == n
	case int64:
		n, err := strconv.ParseInt(literal, 10, 64)
		return err == nil && v == n
	case float64:
		f, err := strconv.ParseFloat(literal, 64)
		return err == nil && v == f
	case nil:
		return literal == "null" || literal == "nil"
	default:
		return fmt.Sprintf("%v", v) == literal
	}
}

func intVar(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return 0
}
