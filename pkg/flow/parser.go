package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single flow file (YAML or JSON).
func ParseFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses flow content. JSON is accepted as YAML.
//
// Two shapes are supported: a bare list of {type, config} objects, or a
// mapping with flow settings and a `steps` list. Step contents are not
// validated here; a malformed step fails when it executes so one bad step
// doesn't block loading the rest.
func Parse(data []byte, sourcePath string) (*Flow, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Message: fmt.Sprintf("invalid flow: %v", err),
		}
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty flow file",
		}
	}

	doc := root.Content[0]
	flow := &Flow{SourcePath: sourcePath}

	switch doc.Kind {
	case yaml.SequenceNode:
		steps, err := parseSteps(doc, sourcePath)
		if err != nil {
			return nil, err
		}
		flow.Steps = steps
	case yaml.MappingNode:
		if err := parseFlowMapping(doc, flow); err != nil {
			return nil, err
		}
	default:
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    doc.Line,
			Message: "flow must be a list of steps or a mapping",
		}
	}

	if flow.OnStepError == "" {
		flow.OnStepError = OnErrorAbort
	}
	if flow.OnFlowComplete == "" {
		flow.OnFlowComplete = CompleteKeepState
	}
	return flow, nil
}

func parseFlowMapping(doc *yaml.Node, flow *Flow) error {
	var settings struct {
		Name               string            `yaml:"name"`
		OnStepError        StepErrorPolicy   `yaml:"onStepError"`
		OnFlowComplete     CompletePolicy    `yaml:"onFlowComplete"`
		OnFlowCloseBrowser bool              `yaml:"onFlowCloseBrowser"`
		Variables          map[string]string `yaml:"variables"`
		Steps              yaml.Node         `yaml:"steps"`
	}
	if err := doc.Decode(&settings); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Line:    doc.Line,
			Message: fmt.Sprintf("invalid flow settings: %v", err),
		}
	}

	switch settings.OnStepError {
	case "", OnErrorSkip, OnErrorAbort:
	default:
		return &ParseError{
			Path:    flow.SourcePath,
			Line:    doc.Line,
			Message: fmt.Sprintf("onStepError must be skip or abort, got %q", settings.OnStepError),
		}
	}
	switch settings.OnFlowComplete {
	case "", CompleteKeepState, CompleteClearState:
	default:
		return &ParseError{
			Path:    flow.SourcePath,
			Line:    doc.Line,
			Message: fmt.Sprintf("onFlowComplete must be clearState or keepState, got %q", settings.OnFlowComplete),
		}
	}

	flow.Name = settings.Name
	flow.OnStepError = settings.OnStepError
	flow.OnFlowComplete = settings.OnFlowComplete
	flow.OnFlowCloseBrowser = settings.OnFlowCloseBrowser
	flow.Variables = settings.Variables

	if settings.Steps.Kind == 0 {
		return nil
	}
	if settings.Steps.Kind != yaml.SequenceNode {
		return &ParseError{
			Path:    flow.SourcePath,
			Line:    settings.Steps.Line,
			Message: "steps must be a list",
		}
	}
	steps, err := parseSteps(&settings.Steps, flow.SourcePath)
	if err != nil {
		return err
	}
	flow.Steps = steps
	return nil
}

func parseSteps(seq *yaml.Node, sourcePath string) ([]Step, error) {
	steps := make([]Step, 0, len(seq.Content))
	for _, node := range seq.Content {
		step, err := parseStep(node, sourcePath)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	// Handle scalar nodes like "- refreshPage" (no config)
	if node.Kind == yaml.ScalarNode {
		return Step{Kind: StepKind(node.Value), Params: Params{}}, nil
	}

	if node.Kind != yaml.MappingNode {
		return Step{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a mapping or step type name",
		}
	}

	var step Step
	if err := node.Decode(&step); err != nil {
		// Forgiving: keep the step so it fails when executed.
		return Step{
			Kind:   StepKind(findScalar(node, "type")),
			Params: Params{"_parseError": err.Error()},
		}, nil
	}
	if step.Params == nil {
		step.Params = Params{}
	}
	return step, nil
}

func findScalar(mapping *yaml.Node, key string) string {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key && mapping.Content[i+1].Kind == yaml.ScalarNode {
			return mapping.Content[i+1].Value
		}
	}
	return ""
}
