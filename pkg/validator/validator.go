// Package validator lints RPA flow files before execution.
// Parse failures are errors; step problems are findings that the run would
// report as step failures. Findings never block loading a flow.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/rpa-runner/pkg/flow"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Finding is a problem with one step. Step is 1-based.
type Finding struct {
	File    string
	Step    int
	Kind    flow.StepKind
	Message string
}

func (f Finding) String() string {
	kind := string(f.Kind)
	if kind == "" {
		kind = "<no type>"
	}
	return fmt.Sprintf("%s: step %d (%s): %s", f.File, f.Step, kind, f.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of flow files that parsed.
	Files []string
	// Errors contains files that could not be read or parsed.
	Errors []error
	// Findings contains step-level problems in parsed files.
	Findings []Finding
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Clean reports whether there are neither errors nor findings.
func (r *Result) Clean() bool {
	return len(r.Errors) == 0 && len(r.Findings) == 0
}

// Validator validates flow files.
type Validator struct{}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// Validate validates a file or directory.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	var files []string
	if info.IsDir() {
		files, err = v.collectFlowFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return result
		}
	} else {
		files = []string{path}
	}

	for _, file := range files {
		f, err := flow.ParseFile(file)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Message: fmt.Sprintf("parse error: %v", err),
			})
			continue
		}
		result.Files = append(result.Files, file)
		result.Findings = append(result.Findings, v.Lint(f)...)
	}
	return result
}

// collectFlowFiles finds all .yaml/.yml/.json files in a directory.
func (v *Validator) collectFlowFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// Lint checks every enabled step of a parsed flow.
func (v *Validator) Lint(f *flow.Flow) []Finding {
	if len(f.Steps) == 0 {
		return []Finding{{File: f.SourcePath, Message: "flow has no steps"}}
	}

	var findings []Finding
	for i, step := range f.Steps {
		if step.Disabled {
			continue
		}
		for _, msg := range checkStep(step) {
			findings = append(findings, Finding{
				File:    f.SourcePath,
				Step:    i + 1,
				Kind:    step.Kind,
				Message: msg,
			})
		}
	}
	return findings
}

// templated values are only known at run time.
func templated(p flow.Params, key string) bool {
	s, ok := p[key].(string)
	return ok && strings.Contains(s, "${")
}

func checkStep(step flow.Step) []string {
	p := step.Params
	if msg := p.String("_parseError", ""); msg != "" {
		return []string{"malformed step: " + msg}
	}
	if step.Kind == "" {
		return []string{"missing step type"}
	}
	if !step.Kind.IsKnown() {
		return []string{fmt.Sprintf("unsupported step type %q", step.Kind)}
	}

	var problems []string
	require := func(keys ...string) {
		for _, k := range keys {
			if !p.Has(k) {
				problems = append(problems, k+" is required")
			}
		}
	}

	if step.Kind.TargetsElement() && !templated(p, "selector") && !templated(p, "elementIndex") {
		if _, err := flow.SelectorFrom(p); err != nil {
			problems = append(problems, err.Error())
		}
	}

	switch step.Kind {
	case flow.KindNavigateTo:
		require("url")
	case flow.KindInputText:
		require("text")
	case flow.KindKeyboard:
		require("key")
	case flow.KindExecuteScript:
		require("script")
	case flow.KindClick:
		if p.Has("clickCount") && !templated(p, "clickCount") {
			if n := p.Int("clickCount", 0); n != 1 && n != 2 {
				problems = append(problems, fmt.Sprintf("clickCount must be 1 or 2, got %v", p["clickCount"]))
			}
		}
	case flow.KindWaitTime:
		problems = append(problems, checkWait(p)...)
	case flow.KindScrollPage:
		switch mode := p.String("mode", "position"); mode {
		case "position":
			switch pos := strings.ToLower(p.String("position", "bottom")); pos {
			case "top", "middle", "bottom":
			default:
				problems = append(problems, fmt.Sprintf("unknown position %q", pos))
			}
		case "distance":
			require("distance")
		default:
			problems = append(problems, fmt.Sprintf("unknown mode %q", mode))
		}
	}
	return problems
}

func checkWait(p flow.Params) []string {
	switch mode := p.String("mode", "fixed"); mode {
	case "fixed":
		if !p.Has("durationMs") {
			return []string{"durationMs is required"}
		}
	case "random":
		if !p.Has("minMs") || !p.Has("maxMs") {
			return []string{"minMs and maxMs are required"}
		}
		if templated(p, "minMs") || templated(p, "maxMs") {
			return nil
		}
		if lo, hi := p.Int("minMs", 0), p.Int("maxMs", 0); lo > hi {
			return []string{fmt.Sprintf("minMs (%d) is greater than maxMs (%d)", lo, hi)}
		}
	default:
		return []string{fmt.Sprintf("unknown mode %q", mode)}
	}
	return nil
}
