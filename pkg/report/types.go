// Package report writes a JSON batch report with live updates.
//
// One file per batch, batch-<taskId>.json, is rewritten atomically as
// environments start and finish. Consumers poll it and use updateSeq for
// change detection.
package report

import (
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status of one environment.
type Status string

// Status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// BatchReport is the report file.
type BatchReport struct {
	Version     string     `json:"version"`
	UpdateSeq   uint64     `json:"updateSeq"`
	TaskID      string     `json:"taskId"`
	Name        string     `json:"name"`
	Flow        string     `json:"flow,omitempty"`
	Status      string     `json:"status"` // task status: queued, running, completed, cancelled, failed
	Mode        string     `json:"mode"`
	MaxParallel int        `json:"maxParallel"`
	Priority    bool       `json:"priority"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Summary     Summary    `json:"summary"`

	// Environments follow dispatch order when the task has started, request
	// order otherwise
	Environments []EnvironmentEntry `json:"environments"`
}

// Summary contains counts per environment status.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Running int `json:"running"`
	Pending int `json:"pending"`
	Percent int `json:"percent"`
}

// EnvironmentEntry is one environment's row.
type EnvironmentEntry struct {
	ID             string         `json:"id"`
	Status         Status         `json:"status"`
	StartTime      *time.Time     `json:"startTime,omitempty"`
	DurationMs     int64          `json:"durationMs,omitempty"`
	StepsCompleted int            `json:"stepsCompleted"`
	StepsFailed    int            `json:"stepsFailed"`
	StepsTotal     int            `json:"stepsTotal"`
	Error          *Error         `json:"error,omitempty"`
	Extracted      map[string]any `json:"extracted,omitempty"`
}

// Error contains error details.
type Error struct {
	Kind    string         `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func errorFrom(e *core.ExecutionError) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Kind:    e.Kind.String(),
		Code:    e.Code,
		Message: e.Error(),
		Details: e.Details,
	}
}
