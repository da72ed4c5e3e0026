package flow

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

// Selector represents element selection criteria for element-targeting steps.
// Pure data structure - the interpreter decides how to use it.
type Selector struct {
	Kind  core.SelectorKind
	Value string
	Index int // 1-based position among matches
}

// SelectorFrom reads selector, selectorKind and elementIndex from params.
// Defaults: css, index 1. A missing selector or a bad kind/index is an error
// reported at execution time.
func SelectorFrom(p Params) (Selector, error) {
	sel := Selector{
		Kind:  core.SelectorKind(strings.ToLower(p.String("selectorKind", string(core.SelectorCSS)))),
		Value: p.String("selector", ""),
		Index: 1,
	}
	if p.Has("elementIndex") {
		n, err := elementIndex(p["elementIndex"])
		if err != nil {
			return sel, err
		}
		sel.Index = n
	}

	if strings.TrimSpace(sel.Value) == "" {
		return sel, fmt.Errorf("selector is required")
	}
	switch sel.Kind {
	case core.SelectorCSS, core.SelectorXPath, core.SelectorText:
	default:
		return sel, fmt.Errorf("unknown selectorKind %q", sel.Kind)
	}
	if sel.Index < 1 {
		return sel, fmt.Errorf("elementIndex must be >= 1, got %d", sel.Index)
	}
	return sel, nil
}

// elementIndex accepts only whole numbers. Anything else would silently
// target a different element.
func elementIndex(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("elementIndex must be a whole number, got %v", t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("elementIndex must be a whole number, got %q", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("elementIndex must be a whole number, got %T", v)
}

// Describe returns a human-readable description like css="#btn"[2].
func (s Selector) Describe() string {
	d := fmt.Sprintf("%s=%q", s.Kind, s.Value)
	if s.Index > 1 {
		d += fmt.Sprintf("[%d]", s.Index)
	}
	return d
}
