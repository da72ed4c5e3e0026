// Package jsengine evaluates ${...} expressions in step parameters.
//
// Each flow run owns one Engine. Flow variables, the environment ID and
// values extracted by earlier steps are globals; randInt, randFloat and
// randChoice provide per-execution randomness for input values.
package jsengine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Engine wraps a goja runtime with the RPA helper globals
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]any
	rng       *rand.Rand
	mu        sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used by the rand* helpers.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// New creates a new JS engine instance
func New(opts ...Option) *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]any),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.setupBuiltins()
	return e
}

// setupBuiltins registers the random helpers
func (e *Engine) setupBuiltins() {
	// randInt(min, max) - uniform integer in [min, max]
	e.runtime.Set("randInt", func(min, max int64) int64 {
		if max < min {
			min, max = max, min
		}
		return min + e.rng.Int64N(max-min+1)
	})

	// randFloat(min, max, decimals=2) - uniform float rounded half away from zero
	e.runtime.Set("randFloat", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.runtime.NewTypeError("randFloat requires 2 arguments"))
		}
		lo := call.Arguments[0].ToFloat()
		hi := call.Arguments[1].ToFloat()
		decimals := int64(2)
		if len(call.Arguments) > 2 {
			decimals = call.Arguments[2].ToInteger()
		}
		if hi < lo {
			lo, hi = hi, lo
		}
		v := lo + e.rng.Float64()*(hi-lo)
		scale := math.Pow(10, float64(decimals))
		return e.runtime.ToValue(math.Round(v*scale) / scale)
	})

	// randChoice(a, b, ...) - one of the arguments
	e.runtime.Set("randChoice", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		return call.Arguments[e.rng.IntN(len(call.Arguments))]
	})
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]string) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Variable returns a previously set variable
func (e *Engine) Variable(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.variables[name]
	return v, ok
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// ExpandVariables expands ${...} expressions in a string using JS evaluation.
// Expressions that fail to evaluate are left as-is.
func (e *Engine) ExpandVariables(text string) string {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		// Find matching }
		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}

		if depth != 0 {
			// Unmatched brace, skip
			start = idx + 2
			continue
		}

		value, err := e.EvalString(result[idx+2 : end-1])
		if err != nil {
			start = end
			continue
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result
}

// ExpandParams returns a copy of params with every string value expanded,
// including strings inside lists.
func (e *Engine) ExpandParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = e.expandValue(v)
	}
	return out
}

func (e *Engine) expandValue(v any) any {
	switch t := v.(type) {
	case string:
		if !strings.Contains(t, "${") {
			return t
		}
		return e.ExpandVariables(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = e.expandValue(item)
		}
		return out
	default:
		return v
	}
}
