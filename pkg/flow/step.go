// Package flow handles parsing and representation of RPA flow files.
package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StepKind is the closed set of step types. Values are the external names
// used in the `type` field of a flow file.
type StepKind string

// Step kind constants.
const (
	// Navigation
	KindNavigateTo  StepKind = "navigateTo"
	KindNewTab      StepKind = "newTab"
	KindCloseTab    StepKind = "closeTab"
	KindRefreshPage StepKind = "refreshPage"
	KindGoBack      StepKind = "goBack"

	// Waits
	KindWaitTime       StepKind = "waitTime"
	KindWaitForElement StepKind = "waitForElement"

	// Element interaction
	KindClick     StepKind = "click"
	KindInputText StepKind = "inputText"
	KindHover     StepKind = "hover"
	KindFocus     StepKind = "focus"

	// Page
	KindScrollPage StepKind = "scrollPage"
	KindKeyboard   StepKind = "keyboard"

	// Data
	KindScreenshot    StepKind = "screenshot"
	KindExtractText   StepKind = "extractText"
	KindExecuteScript StepKind = "executeScript"
)

// Kinds returns every known step kind.
func Kinds() []StepKind {
	return []StepKind{
		KindNavigateTo, KindNewTab, KindCloseTab, KindRefreshPage, KindGoBack,
		KindWaitTime, KindWaitForElement,
		KindClick, KindInputText, KindHover, KindFocus,
		KindScrollPage, KindKeyboard,
		KindScreenshot, KindExtractText, KindExecuteScript,
	}
}

// IsKnown reports whether k is one of the declared kinds.
func (k StepKind) IsKnown() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// TargetsElement reports whether steps of this kind resolve a selector.
func (k StepKind) TargetsElement() bool {
	switch k {
	case KindClick, KindInputText, KindHover, KindFocus, KindWaitForElement, KindExtractText:
		return true
	}
	return false
}

// Step is one declarative automation instruction. Immutable once a flow is
// loaded; the runner expands variables into a copy.
type Step struct {
	Kind     StepKind `json:"type" yaml:"type"`
	Name     string   `json:"name,omitempty" yaml:"name"`
	Disabled bool     `json:"disabled,omitempty" yaml:"disabled"`
	Params   Params   `json:"config,omitempty" yaml:"config"`
}

// Describe returns a human-readable description.
func (s Step) Describe() string {
	if s.Name != "" {
		return s.Name
	}
	if sel := s.Params.String("selector", ""); sel != "" {
		return fmt.Sprintf("%s %s", s.Kind, sel)
	}
	if url := s.Params.String("url", ""); url != "" {
		return fmt.Sprintf("%s %s", s.Kind, url)
	}
	return string(s.Kind)
}

// WithParams returns a copy of the step carrying params.
func (s Step) WithParams(params Params) Step {
	s.Params = params
	return s
}

// Params holds kind-specific step configuration. Unknown keys are ignored.
type Params map[string]any

// Has reports whether key is present and non-nil.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// String returns the value as a string, or def when missing.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the value as an int, or def when missing or not numeric.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return n
	}
	return def
}

// Bool returns the value as a bool, or def when missing.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	case int:
		return t != 0
	}
	return def
}

// Millis returns a millisecond count as a duration, or def when missing.
func (p Params) Millis(key string, def time.Duration) time.Duration {
	if !p.Has(key) {
		return def
	}
	n := p.Int(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// StringList returns a list value. A comma or plus separated string is split.
func (p Params) StringList(key string) []string {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		fields := strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == '+' })
		out := make([]string, 0, len(fields))
		for _, f := range fields {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}
