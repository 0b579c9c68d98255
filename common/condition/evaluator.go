package condition

import (
	"fmt"
	"sync"
)

// Evaluator parses condition strings once and caches the compiled form.
// Safe for concurrent use across executions.
type Evaluator struct {
	cache map[string]Expr
	mu    sync.RWMutex
}

// NewEvaluator creates a new condition evaluator with caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]Expr),
	}
}

// Compile parses and caches a condition string
func (e *Evaluator) Compile(input string) (Expr, error) {
	e.mu.RLock()
	expr, ok := e.cache[input]
	e.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := Parse(input)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[input] = expr
	e.mu.Unlock()
	return expr, nil
}

// Evaluate compiles (or reuses) a condition and evaluates it against env
func (e *Evaluator) Evaluate(input string, env *Env) (bool, error) {
	if input == "" {
		return false, fmt.Errorf("empty condition")
	}
	expr, err := e.Compile(input)
	if err != nil {
		return false, err
	}
	return expr.Eval(env), nil
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]Expr)
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
