// Package executor runs flows against browser environments: one environment
// at a time (FlowRunner) or as scheduled batches (Scheduler).
package executor

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/flow"
	"github.com/devicelab-dev/rpa-runner/pkg/metrics"
)

// ExecutionMode decides the dispatch order and concurrency of a batch.
type ExecutionMode string

// ExecutionMode values
const (
	ModeSequential ExecutionMode = "sequential"
	ModeRandom     ExecutionMode = "random"
	ModeParallel   ExecutionMode = "parallel"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (ExecutionMode, error) {
	m := ExecutionMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeSequential, ModeRandom, ModeParallel:
		return m, nil
	}
	return "", fmt.Errorf("unknown execution mode %q (want sequential, random or parallel)", s)
}

// BatchRequest asks for one flow to be run across a set of environments.
type BatchRequest struct {
	Name           string
	EnvironmentIDs []string
	Flow           *flow.Flow
	Mode           ExecutionMode
	MaxParallel    int
	Priority       bool // Admitted ahead of non-priority work at the worker gate
}

// RunnerConfig configures flow execution.
type RunnerConfig struct {
	Metrics *metrics.Collector

	// Live progress callbacks, invoked on the worker running the environment
	OnFlowStart    func(envID, flowName string)
	OnStepComplete func(envID string, idx int, desc string, res core.StepResult)
	OnFlowEnd      func(envID string, res core.RunResult)
}

// ProgressFunc is called once per finished environment.
type ProgressFunc func(taskID string, percent int, envID string)

// CompletionFunc is called exactly once when a task reaches a terminal state.
type CompletionFunc func(taskID string, status core.TaskStatus, results map[string]core.RunResult)
