package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_StepList(t *testing.T) {
	content := `
- type: navigateTo
  config:
    url: https://example.com
- type: click
  config:
    selector: "#btn"
    elementIndex: 2
- refreshPage
`
	flow, err := Parse([]byte(content), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(flow.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(flow.Steps))
	}
	if flow.Steps[0].Kind != KindNavigateTo {
		t.Errorf("expected navigateTo, got %q", flow.Steps[0].Kind)
	}
	if got := flow.Steps[0].Params.String("url", ""); got != "https://example.com" {
		t.Errorf("url = %q", got)
	}
	if got := flow.Steps[1].Params.Int("elementIndex", 1); got != 2 {
		t.Errorf("elementIndex = %d, want 2", got)
	}
	if flow.Steps[2].Kind != KindRefreshPage {
		t.Errorf("expected refreshPage, got %q", flow.Steps[2].Kind)
	}
	if flow.Steps[2].Params == nil {
		t.Error("scalar step should get empty params")
	}

	// Defaults
	if flow.OnStepError != OnErrorAbort {
		t.Errorf("OnStepError = %q, want abort", flow.OnStepError)
	}
	if flow.OnFlowComplete != CompleteKeepState {
		t.Errorf("OnFlowComplete = %q, want keepState", flow.OnFlowComplete)
	}
}

func TestParse_JSONFlowWithSettings(t *testing.T) {
	content := `{
  "name": "Daily check-in",
  "onStepError": "skip",
  "onFlowComplete": "clearState",
  "onFlowCloseBrowser": true,
  "variables": {"BASE": "https://example.com"},
  "steps": [
    {"type": "navigateTo", "config": {"url": "${BASE}/login", "timeoutMs": 5000}},
    {"type": "waitTime", "config": {"mode": "random", "minMs": 100, "maxMs": 200}},
    {"type": "keyboard", "config": {"key": "a", "modifiers": ["Ctrl"]}, "name": "select all"}
  ]
}`
	flow, err := Parse([]byte(content), "flow.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if flow.Name != "Daily check-in" {
		t.Errorf("Name = %q", flow.Name)
	}
	if flow.AbortOnError() {
		t.Error("skip policy should not abort")
	}
	if !flow.ClearStateOnComplete() {
		t.Error("expected clearState")
	}
	if !flow.OnFlowCloseBrowser {
		t.Error("expected onFlowCloseBrowser")
	}
	if flow.Variables["BASE"] != "https://example.com" {
		t.Errorf("Variables = %v", flow.Variables)
	}
	if len(flow.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(flow.Steps))
	}
	if got := flow.Steps[0].Params.Int("timeoutMs", 0); got != 5000 {
		t.Errorf("timeoutMs = %d", got)
	}
	if got := flow.Steps[2].Params.StringList("modifiers"); len(got) != 1 || got[0] != "Ctrl" {
		t.Errorf("modifiers = %v", got)
	}
	if flow.Steps[2].Describe() != "select all" {
		t.Errorf("Describe() = %q", flow.Steps[2].Describe())
	}
}

func TestParse_UnknownTypeIsKept(t *testing.T) {
	content := `
- type: teleport
  config:
    where: moon
- type: click
  config:
    selector: "#ok"
    extra: ignored
`
	flow, err := Parse([]byte(content), "test.yaml")
	if err != nil {
		t.Fatalf("unknown types must not fail loading: %v", err)
	}
	if flow.Steps[0].Kind.IsKnown() {
		t.Error("teleport should not be a known kind")
	}
	if !flow.Steps[1].Kind.IsKnown() {
		t.Error("click should be a known kind")
	}
}

func TestParse_MalformedConfigIsDeferred(t *testing.T) {
	content := `
- type: click
  config: [not, a, mapping]
`
	flow, err := Parse([]byte(content), "test.yaml")
	if err != nil {
		t.Fatalf("malformed step config must not fail loading: %v", err)
	}
	if flow.Steps[0].Kind != KindClick {
		t.Errorf("Kind = %q", flow.Steps[0].Kind)
	}
	if !flow.Steps[0].Params.Has("_parseError") {
		t.Error("expected parse error to be carried to execution")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", "empty flow file"},
		{"scalar root", "hello", "flow must be a list"},
		{"bad policy", "onStepError: retry\nsteps: []", "onStepError must be skip or abort"},
		{"bad complete", "onFlowComplete: wipe\nsteps: []", "onFlowComplete must be"},
		{"steps not list", "steps: {a: b}", "steps must be a list"},
		{"step not mapping", "- [1, 2]", "step must be a mapping"},
		{"invalid yaml", "- type: [", "invalid flow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), "bad.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
			if !strings.HasPrefix(err.Error(), "bad.yaml") {
				t.Errorf("error should carry the path: %q", err)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	if err := os.WriteFile(path, []byte("- type: goBack\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	flow, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if flow.SourcePath != path {
		t.Errorf("SourcePath = %q", flow.SourcePath)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
