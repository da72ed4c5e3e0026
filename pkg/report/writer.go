package report

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/logger"
)

// debounce delays flushes for non-terminal updates.
const debounce = 100 * time.Millisecond

// FileName returns the report file name for a task.
func FileName(taskID string) string {
	return "batch-" + taskID + ".json"
}

// Writer provides thread-safe updates to one batch report.
// Environment workers can update it concurrently.
type Writer struct {
	mu     sync.Mutex
	path   string
	report *BatchReport
	pos    map[string]int
	timer  *time.Timer
	err    error
}

// NewWriter creates a Writer for task in outputDir. Nothing is written
// until Start.
func NewWriter(outputDir string, task core.BatchTask, flowName string) (*Writer, error) {
	if err := ensureDir(outputDir); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	order := task.Order
	if len(order) == 0 {
		order = task.Environments
	}
	r := &BatchReport{
		Version:      Version,
		TaskID:       task.TaskID,
		Name:         task.Name,
		Flow:         flowName,
		Status:       task.Status.String(),
		Mode:         task.Mode,
		MaxParallel:  task.MaxParallel,
		Priority:     task.Priority,
		Environments: make([]EnvironmentEntry, len(order)),
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		r.Environments[i] = EnvironmentEntry{ID: id, Status: StatusPending}
		pos[id] = i
	}

	return &Writer{
		path:   filepath.Join(outputDir, FileName(task.TaskID)),
		report: r,
		pos:    pos,
	}, nil
}

// Path returns the report file path.
func (w *Writer) Path() string { return w.path }

// Start marks the batch as running.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.report.Status = core.TaskRunning.String()
	w.report.StartTime = time.Now()
	w.flushLocked()
}

// Running marks an environment as started. The write is debounced.
func (w *Writer) Running(envID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i, ok := w.pos[envID]
	if !ok {
		return
	}
	now := time.Now()
	w.report.Environments[i].Status = StatusRunning
	w.report.Environments[i].StartTime = &now

	if w.timer == nil {
		w.timer = time.AfterFunc(debounce, w.flush)
	}
}

// Record stores a finished environment and flushes immediately.
func (w *Writer) Record(res core.RunResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.recordLocked(res) {
		w.flushLocked()
	}
}

func (w *Writer) recordLocked(res core.RunResult) bool {
	i, ok := w.pos[res.EnvironmentID]
	if !ok {
		return false
	}
	e := &w.report.Environments[i]
	e.Status = StatusFailed
	if res.Success {
		e.Status = StatusPassed
	}
	e.DurationMs = res.DurationMs
	e.StepsCompleted = res.StepsCompleted
	e.StepsFailed = res.StepsFailed
	e.StepsTotal = res.StepsTotal
	e.Error = errorFrom(res.Error)
	e.Extracted = printable(res.Extracted)
	return true
}

// End writes the final task state. Results the writer has not seen are
// taken from task.
func (w *Writer) End(task core.BatchTask) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, res := range task.Results {
		if i, ok := w.pos[id]; ok && !w.report.Environments[i].Status.IsTerminal() {
			w.recordLocked(res)
		}
	}

	w.report.Status = task.Status.String()
	end := time.Now()
	if task.EndedAt != nil {
		end = *task.EndedAt
	}
	w.report.EndTime = &end
	w.flushLocked()
	return w.err
}

// Snapshot returns a copy of the current report.
func (w *Writer) Snapshot() BatchReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := *w.report
	r.Environments = append([]EnvironmentEntry(nil), w.report.Environments...)
	return r
}

func (w *Writer) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// flushLocked writes the report while holding the lock.
func (w *Writer) flushLocked() {
	w.report.UpdateSeq++
	w.report.LastUpdated = time.Now()
	w.report.Summary = w.computeSummary()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	if err := atomicWriteJSON(w.path, w.report); err != nil {
		w.err = err
		logger.Warn("write report %s: %v", w.path, err)
	}
}

// computeSummary calculates summary from environment statuses.
func (w *Writer) computeSummary() Summary {
	var s Summary
	for _, e := range w.report.Environments {
		s.Total++
		switch e.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		}
	}
	if s.Total > 0 {
		s.Percent = 100 * (s.Passed + s.Failed) / s.Total
	}
	return s
}

// printable drops binary extracted values such as screenshots.
func printable(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if b, ok := v.([]byte); ok {
			out[k] = fmt.Sprintf("<%d bytes>", len(b))
			continue
		}
		out[k] = v
	}
	return out
}
