package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/logger"
	"github.com/devicelab-dev/rpa-runner/pkg/metrics"
)

// ErrTaskNotFound is returned for unknown task IDs.
var ErrTaskNotFound = errors.New("task not found")

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// MaxWorkers caps runs in flight across all tasks (default NumCPU*2)
	MaxWorkers int
	Metrics    *metrics.Collector
	// Rand shuffles Random-mode batches; seeded from the runtime when nil
	Rand *rand.Rand
}

// Scheduler accepts batch requests and runs them on a bounded worker pool.
// Submit, Start and Cancel never block on flow execution.
type Scheduler struct {
	runner     *FlowRunner
	registry   *Registry
	gate       *gate
	maxWorkers int
	metrics    *metrics.Collector

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewScheduler creates a Scheduler that records tasks in registry.
func NewScheduler(runner *FlowRunner, registry *Registry, cfg SchedulerConfig) *Scheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU() * 2
	}
	if registry == nil {
		registry = NewRegistry()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Scheduler{
		runner:     runner,
		registry:   registry,
		gate:       newGate(cfg.MaxWorkers),
		maxWorkers: cfg.MaxWorkers,
		metrics:    cfg.Metrics,
		rng:        rng,
	}
}

// Registry returns the task registry.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Submit validates req and registers a Queued task. The returned error is a
// *core.ExecutionError of kind InvalidRequest.
func (s *Scheduler) Submit(req BatchRequest) (string, error) {
	if err := validateRequest(&req); err != nil {
		return "", err
	}

	envs := append([]string(nil), req.EnvironmentIDs...)
	req.EnvironmentIDs = envs
	task := core.BatchTask{
		TaskID:       uuid.NewString(),
		Name:         req.Name,
		Status:       core.TaskQueued,
		Mode:         string(req.Mode),
		MaxParallel:  req.MaxParallel,
		Priority:     req.Priority,
		Environments: envs,
		Results:      make(map[string]core.RunResult, len(envs)),
		CreatedAt:    time.Now(),
	}
	s.registry.add(&taskEntry{task: task, request: req, done: make(chan struct{})})

	logger.L().Info().Str("task", task.TaskID).Str("mode", task.Mode).
		Int("environments", len(envs)).Int("maxParallel", req.MaxParallel).Msg("batch submitted")
	return task.TaskID, nil
}

func validateRequest(req *BatchRequest) error {
	invalid := func(format string, args ...any) error {
		return core.ErrInvalidRequest.WithMessage(fmt.Sprintf(format, args...))
	}

	if len(req.EnvironmentIDs) == 0 {
		return invalid("environmentIds must not be empty")
	}
	seen := make(map[string]bool, len(req.EnvironmentIDs))
	for i, id := range req.EnvironmentIDs {
		if id == "" {
			return invalid("environmentIds[%d] is empty", i)
		}
		if seen[id] {
			return invalid("environment %q listed more than once", id)
		}
		seen[id] = true
	}
	if req.MaxParallel < 1 {
		return invalid("maxParallel must be >= 1, got %d", req.MaxParallel)
	}
	if req.Flow == nil {
		return invalid("flow is required")
	}
	if req.Mode == "" {
		req.Mode = ModeSequential
	}
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return core.ErrInvalidRequest.WithMessage(err.Error())
	}
	return nil
}

// Start begins executing a Queued task and returns immediately. It returns
// false when the task is unknown or not Queued. ctx bounds the runs
// themselves; cancelling it aborts in-flight steps, unlike Cancel.
func (s *Scheduler) Start(ctx context.Context, taskID string, onProgress ProgressFunc, onComplete CompletionFunc) bool {
	e, ok := s.registry.lookup(taskID)
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.task.Status != core.TaskQueued {
		e.mu.Unlock()
		return false
	}
	now := time.Now()
	order := s.dispatchOrder(e.request)
	e.task.Status = core.TaskRunning
	e.task.StartedAt = &now
	e.task.Order = order
	e.mu.Unlock()

	logger.L().Info().Str("task", taskID).Strs("order", order).Msg("batch started")
	go s.dispatch(ctx, e, order, onProgress, onComplete)
	return true
}

// dispatchOrder returns the order environments are handed to workers. The
// request's own slice is never reordered.
func (s *Scheduler) dispatchOrder(req BatchRequest) []string {
	order := append([]string(nil), req.EnvironmentIDs...)
	if req.Mode == ModeRandom {
		s.rngMu.Lock()
		s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		s.rngMu.Unlock()
	}
	return order
}

// Cancel stops dispatch of further environments. In-flight runs finish and
// are recorded. A Queued task is cancelled immediately. Returns false for
// unknown or already finished tasks.
func (s *Scheduler) Cancel(taskID string) bool {
	e, ok := s.registry.lookup(taskID)
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.task.Status.IsTerminal() {
		e.mu.Unlock()
		return false
	}
	e.cancel = true
	if e.task.Status != core.TaskQueued {
		e.mu.Unlock()
		logger.L().Info().Str("task", taskID).Msg("batch cancellation requested")
		return true
	}

	now := time.Now()
	e.task.Status = core.TaskCancelled
	e.task.EndedAt = &now
	e.finished = true
	e.mu.Unlock()

	close(e.done)
	s.metrics.BatchFinished(core.TaskCancelled.String())
	logger.L().Info().Str("task", taskID).Msg("queued batch cancelled")
	return true
}

// GetStatus returns a snapshot of the task.
func (s *Scheduler) GetStatus(taskID string) (core.BatchTask, bool) {
	return s.registry.Get(taskID)
}

// Wait blocks until the task reaches a terminal state or ctx is done.
func (s *Scheduler) Wait(ctx context.Context, taskID string) (core.BatchTask, error) {
	e, ok := s.registry.lookup(taskID)
	if !ok {
		return core.BatchTask{}, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return core.BatchTask{}, ctx.Err()
	}
	task, _ := s.registry.Get(taskID)
	return task, nil
}

// List returns snapshots of all tasks in submission order.
func (s *Scheduler) List() []core.BatchTask {
	return s.registry.List()
}

// ClearFinished drops terminal tasks from the registry.
func (s *Scheduler) ClearFinished() int {
	return s.registry.ClearFinished()
}

// Running returns the number of environment runs in flight.
func (s *Scheduler) Running() int {
	return s.gate.running()
}
