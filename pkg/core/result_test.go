package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBatchTask_Percent(t *testing.T) {
	task := BatchTask{
		Environments: []string{"e1", "e2", "e3"},
		Results:      map[string]RunResult{"e1": {EnvironmentID: "e1"}},
	}
	if got := task.Percent(); got != 33 {
		t.Errorf("Percent() = %d, want 33", got)
	}

	if got := (BatchTask{}).Percent(); got != 0 {
		t.Errorf("Percent() on empty task = %d, want 0", got)
	}
}

func TestBatchTask_CloneIsDeep(t *testing.T) {
	now := time.Now()
	task := BatchTask{
		TaskID:       "t1",
		Environments: []string{"e1", "e2"},
		Order:        []string{"e2", "e1"},
		Results:      map[string]RunResult{"e1": {EnvironmentID: "e1", Success: true}},
		StartedAt:    &now,
	}

	clone := task.Clone()
	clone.Environments[0] = "changed"
	clone.Order[0] = "changed"
	clone.Results["e2"] = RunResult{EnvironmentID: "e2"}
	*clone.StartedAt = now.Add(time.Hour)

	if task.Environments[0] != "e1" || task.Order[0] != "e2" {
		t.Error("Clone() shares slices with the original")
	}
	if len(task.Results) != 1 {
		t.Error("Clone() shares the results map with the original")
	}
	if !task.StartedAt.Equal(now) {
		t.Error("Clone() shares StartedAt with the original")
	}
}

func TestBatchTask_CloneCopiesResultMaps(t *testing.T) {
	task := BatchTask{Results: map[string]RunResult{"e1": {
		EnvironmentID: "e1",
		Extracted:     map[string]any{"total": "42"},
		Error:         ErrFault.WithDetails(map[string]any{"step": 2}),
	}}}

	clone := task.Clone()
	clone.Results["e1"].Extracted["total"] = "0"
	clone.Results["e1"].Error.Details["step"] = 9
	clone.Results["e1"].Error.Message = "changed"

	orig := task.Results["e1"]
	if orig.Extracted["total"] != "42" {
		t.Error("Clone() shares Extracted with the original")
	}
	if orig.Error.Details["step"] != 2 || orig.Error.Message == "changed" {
		t.Error("Clone() shares the error with the original")
	}
}

func TestRunResult_JSONUsesNames(t *testing.T) {
	r := RunResult{
		EnvironmentID: "e1",
		Error:         ErrSessionUnavailable.WithMessage("profile does not exist"),
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"error":"profile does not exist"`) {
		t.Errorf("json = %s", data)
	}

	task := BatchTask{Status: TaskCancelled}
	data, _ = json.Marshal(task)
	if !strings.Contains(string(data), `"status":"cancelled"`) {
		t.Errorf("json = %s", data)
	}
}

func TestStepResult_Kind(t *testing.T) {
	if (StepResult{OK: true}).Kind() != ErrKindNone {
		t.Error("successful result should have no kind")
	}
	if (StepResult{Error: ErrTimeout}).Kind() != ErrKindTimeout {
		t.Error("Kind() should report the error kind")
	}
}
