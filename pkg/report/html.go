package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"sort"
	"strings"
	"time"
)

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath string // Path to write the HTML file (default: report path with .html)
	Title      string // Report title (default: task name)
}

// GenerateHTML renders the batch report at reportPath as a standalone
// HTML page and returns the path written.
func GenerateHTML(reportPath string, cfg HTMLConfig) (string, error) {
	r, err := ReadReport(reportPath)
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}

	if cfg.Title == "" {
		cfg.Title = r.Name
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = strings.TrimSuffix(reportPath, ".json") + ".html"
	}

	html, err := renderHTML(buildHTMLData(r, cfg))
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("write html: %w", err)
	}
	return cfg.OutputPath, nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title         string
	GeneratedAt   string
	Report        *BatchReport
	Environments  []EnvironmentHTMLData
	TotalDuration string
	PassRate      float64
}

// EnvironmentHTMLData is one environment row formatted for HTML.
type EnvironmentHTMLData struct {
	EnvironmentEntry
	DurationStr string
	DurationPct float64
	Values      []KeyValue
}

// KeyValue is one extracted value, sorted by key for stable output.
type KeyValue struct {
	Key   string
	Value string
}

func buildHTMLData(r *BatchReport, cfg HTMLConfig) HTMLData {
	var maxDuration int64
	for _, e := range r.Environments {
		if e.DurationMs > maxDuration {
			maxDuration = e.DurationMs
		}
	}

	envs := make([]EnvironmentHTMLData, len(r.Environments))
	for i, e := range r.Environments {
		row := EnvironmentHTMLData{
			EnvironmentEntry: e,
			DurationStr:      formatDuration(e.DurationMs),
		}
		if maxDuration > 0 {
			row.DurationPct = float64(e.DurationMs) / float64(maxDuration) * 100
		}
		for k, v := range e.Extracted {
			row.Values = append(row.Values, KeyValue{Key: k, Value: fmt.Sprint(v)})
		}
		sort.Slice(row.Values, func(a, b int) bool { return row.Values[a].Key < row.Values[b].Key })
		if !e.Status.IsTerminal() && e.Status != StatusRunning {
			row.DurationStr = "-"
		}
		envs[i] = row
	}

	var passRate float64
	if r.Summary.Total > 0 {
		passRate = float64(r.Summary.Passed) / float64(r.Summary.Total) * 100
	}

	total := "-"
	if r.EndTime != nil {
		total = formatDuration(r.EndTime.Sub(r.StartTime).Milliseconds())
	}

	return HTMLData{
		Title:         cfg.Title,
		GeneratedAt:   time.Now().Format("2006-01-02 15:04:05"),
		Report:        r,
		Environments:  envs,
		TotalDuration: total,
		PassRate:      passRate,
	}
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --text-primary: #111827;
            --text-secondary: #6b7280;
            --border: #e5e7eb;
            --passed: #10b981;
            --failed: #ef4444;
            --running: #3b82f6;
            --pending: #9ca3af;
        }
        body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: var(--bg-secondary); color: var(--text-primary); }
        header { background: var(--bg-primary); border-bottom: 1px solid var(--border); padding: 20px 32px; }
        header h1 { margin: 0 0 4px; font-size: 20px; }
        header .meta { color: var(--text-secondary); font-size: 13px; }
        main { padding: 24px 32px; }
        .cards { display: flex; gap: 16px; margin-bottom: 24px; }
        .card { background: var(--bg-primary); border: 1px solid var(--border); border-radius: 8px; padding: 12px 20px; min-width: 110px; }
        .card .value { font-size: 24px; font-weight: 600; }
        .card .label { color: var(--text-secondary); font-size: 12px; text-transform: uppercase; }
        table { width: 100%; border-collapse: collapse; background: var(--bg-primary); border: 1px solid var(--border); }
        th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid var(--border); font-size: 14px; vertical-align: top; }
        th { background: var(--bg-secondary); font-weight: 600; }
        .status { font-weight: 600; text-transform: uppercase; font-size: 12px; }
        .passed { color: var(--passed); }
        .failed { color: var(--failed); }
        .running { color: var(--running); }
        .pending { color: var(--pending); }
        .bar { background: var(--border); height: 6px; border-radius: 3px; width: 120px; }
        .bar span { display: block; height: 6px; border-radius: 3px; background: var(--running); }
        .error { color: var(--failed); font-family: monospace; font-size: 12px; white-space: pre-wrap; }
        .values { font-family: monospace; font-size: 12px; color: var(--text-secondary); }
    </style>
</head>
<body>
<header>
    <h1>{{.Title}}</h1>
    <div class="meta">
        Task {{.Report.TaskID}} &middot; {{.Report.Mode}}{{if .Report.Priority}} (priority){{end}} &middot;
        status <span class="status {{.Report.Status}}">{{.Report.Status}}</span> &middot;
        generated {{.GeneratedAt}}
    </div>
</header>
<main>
    <div class="cards">
        <div class="card"><div class="value">{{.Report.Summary.Total}}</div><div class="label">Environments</div></div>
        <div class="card"><div class="value passed">{{.Report.Summary.Passed}}</div><div class="label">Passed</div></div>
        <div class="card"><div class="value failed">{{.Report.Summary.Failed}}</div><div class="label">Failed</div></div>
        <div class="card"><div class="value">{{printf "%.0f" .PassRate}}%</div><div class="label">Pass rate</div></div>
        <div class="card"><div class="value">{{.TotalDuration}}</div><div class="label">Duration</div></div>
    </div>
    <table>
        <thead>
        <tr><th>Environment</th><th>Status</th><th>Steps</th><th>Duration</th><th>Details</th></tr>
        </thead>
        <tbody>
        {{range .Environments}}
        <tr>
            <td>{{.ID}}</td>
            <td><span class="status {{.Status}}">{{.Status}}</span></td>
            <td>{{.StepsCompleted}}/{{.StepsTotal}}{{if .StepsFailed}} ({{.StepsFailed}} failed){{end}}</td>
            <td>{{.DurationStr}}<div class="bar"><span style="width: {{printf "%.0f" .DurationPct}}%"></span></div></td>
            <td>
                {{with .Error}}<div class="error">[{{.Code}}] {{.Message}}</div>{{end}}
                {{range .Values}}<div class="values">{{.Key}} = {{.Value}}</div>{{end}}
            </td>
        </tr>
        {{end}}
        </tbody>
    </table>
</main>
</body>
</html>
`
