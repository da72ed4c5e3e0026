package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

func writtenReport(t *testing.T) string {
	t.Helper()
	w, err := NewWriter(t.TempDir(), testTask(), "checkout")
	if err != nil {
		t.Fatal(err)
	}
	w.Start()
	w.Record(core.RunResult{
		EnvironmentID: "E1", Success: true, DurationMs: 1200,
		StepsCompleted: 3, StepsTotal: 3,
		Extracted: map[string]any{"total": "42.00", "orderId": "A-7"},
	})
	w.Record(core.RunResult{
		EnvironmentID: "E2", DurationMs: 300,
		StepsCompleted: 1, StepsFailed: 1, StepsTotal: 3,
		Error: core.ErrElementNotFound.WithMessage("no element <script> matches #buy"),
	})

	task := testTask()
	task.Status = core.TaskCompleted
	now := time.Now()
	task.EndedAt = &now
	if err := w.End(task); err != nil {
		t.Fatal(err)
	}
	return w.Path()
}

func TestGenerateHTML(t *testing.T) {
	path := writtenReport(t)

	out, err := GenerateHTML(path, HTMLConfig{})
	if err != nil {
		t.Fatalf("GenerateHTML failed: %v", err)
	}
	if out != strings.TrimSuffix(path, ".json")+".html" {
		t.Errorf("output path = %s", out)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)
	for _, want := range []string{
		"<title>nightly</title>",
		"E1", "E2", "E3",
		"orderId = A-7",
		"element_not_found",
		"&lt;script&gt;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(html, "<script> matches") {
		t.Error("error message not escaped")
	}
	if strings.Index(html, "orderId") > strings.Index(html, "total =") {
		t.Error("extracted values not sorted by key")
	}
}

func TestGenerateHTML_CustomOutput(t *testing.T) {
	path := writtenReport(t)
	target := filepath.Join(t.TempDir(), "summary.html")

	out, err := GenerateHTML(path, HTMLConfig{OutputPath: target, Title: "Nightly run"})
	if err != nil {
		t.Fatal(err)
	}
	if out != target {
		t.Errorf("output path = %s", out)
	}
	data, _ := os.ReadFile(target)
	if !strings.Contains(string(data), "<title>Nightly run</title>") {
		t.Error("custom title not rendered")
	}
}

func TestGenerateHTML_MissingReport(t *testing.T) {
	if _, err := GenerateHTML(filepath.Join(t.TempDir(), "none.json"), HTMLConfig{}); err == nil {
		t.Error("expected error for missing report")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{250, "250ms"},
		{1200, "1.2s"},
		{125000, "2m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.ms); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
