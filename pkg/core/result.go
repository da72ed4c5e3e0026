package core

import "time"

// StepResult captures the outcome of executing a single step
type StepResult struct {
	OK             bool            `json:"ok"`
	Error          *ExecutionError `json:"error,omitempty"`
	ExtractedValue any             `json:"extractedValue,omitempty"`

	// Strategy names the fallback strategy that succeeded (element steps)
	Strategy string        `json:"strategy,omitempty"`
	Attempts []string      `json:"attempts,omitempty"` // Errors of the strategies that failed first
	Duration time.Duration `json:"duration"`
}

// Kind returns the error kind of a failed result, ErrKindNone otherwise
func (r StepResult) Kind() ErrorKind {
	if r.Error == nil {
		return ErrKindNone
	}
	return r.Error.Kind
}

// RunResult captures the outcome of one environment's flow run.
// Immutable once recorded in a BatchTask.
type RunResult struct {
	EnvironmentID  string          `json:"environmentId"`
	Success        bool            `json:"success"`
	Error          *ExecutionError `json:"error,omitempty"`
	DurationMs     int64           `json:"durationMs"`
	StepsCompleted int             `json:"stepsCompleted"`
	StepsFailed    int             `json:"stepsFailed"`
	StepsTotal     int             `json:"stepsTotal"`
	Extracted      map[string]any  `json:"extracted,omitempty"` // Values stored with saveAs
}

// BatchTask is a read-only snapshot of one batch submission.
type BatchTask struct {
	TaskID       string               `json:"taskId"`
	Name         string               `json:"name"`
	Status       TaskStatus           `json:"status"`
	Mode         string               `json:"mode"`
	MaxParallel  int                  `json:"maxParallel"`
	Priority     bool                 `json:"priority"`
	Environments []string             `json:"environments"`
	Order        []string             `json:"order,omitempty"` // Dispatch order once started
	Results      map[string]RunResult `json:"results"`
	SuccessCount int                  `json:"successCount"`
	FailedCount  int                  `json:"failedCount"`
	CreatedAt    time.Time            `json:"createdAt"`
	StartedAt    *time.Time           `json:"startedAt,omitempty"`
	EndedAt      *time.Time           `json:"endedAt,omitempty"`
}

// Percent returns 100 * len(results) / len(environments)
func (t BatchTask) Percent() int {
	if len(t.Environments) == 0 {
		return 0
	}
	return 100 * len(t.Results) / len(t.Environments)
}

func (r RunResult) clone() RunResult {
	c := r
	if r.Extracted != nil {
		c.Extracted = make(map[string]any, len(r.Extracted))
		for k, v := range r.Extracted {
			c.Extracted[k] = v
		}
	}
	if r.Error != nil {
		e := *r.Error
		if r.Error.Details != nil {
			e.Details = make(map[string]any, len(r.Error.Details))
			for k, v := range r.Error.Details {
				e.Details[k] = v
			}
		}
		c.Error = &e
	}
	return c
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (t BatchTask) Clone() BatchTask {
	c := t
	c.Environments = append([]string(nil), t.Environments...)
	if t.Order != nil {
		c.Order = append([]string(nil), t.Order...)
	}
	c.Results = make(map[string]RunResult, len(t.Results))
	for k, v := range t.Results {
		c.Results[k] = v.clone()
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.EndedAt != nil {
		ts := *t.EndedAt
		c.EndedAt = &ts
	}
	return c
}
