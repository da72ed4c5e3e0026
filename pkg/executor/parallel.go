package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/logger"
)

// workerCount is 1 for Sequential and Random. Parallel tasks get
// maxParallel workers, bounded by the environment count and the pool size.
func (s *Scheduler) workerCount(req BatchRequest, envs int) int {
	if req.Mode != ModeParallel {
		return 1
	}
	return max(1, min(req.MaxParallel, envs, s.maxWorkers))
}

// dispatch runs a task to completion using a work queue pattern: all
// workers pull from the same queue until it is drained or the task is
// cancelled.
func (s *Scheduler) dispatch(ctx context.Context, e *taskEntry, order []string, onProgress ProgressFunc, onComplete CompletionFunc) {
	queue := make(chan string, len(order))
	for _, id := range order {
		queue <- id
	}
	close(queue)

	e.mu.Lock()
	req := e.request
	taskID := e.task.TaskID
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < s.workerCount(req, len(order)); w++ {
		worker := w
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d panicked: %v", worker, r)
				}
			}()

			for envID := range queue {
				if s.cancelRequested(e) || gctx.Err() != nil {
					return nil
				}
				if err := s.gate.acquire(gctx, req.Priority); err != nil {
					return nil
				}
				// Cancel may have landed while this worker waited for a slot
				if s.cancelRequested(e) {
					s.gate.release()
					return nil
				}
				res := s.runOne(ctx, envID, req)
				s.record(e, res, onProgress)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		logger.L().Error().Str("task", taskID).Err(err).Msg("batch worker failed")
	}
	s.complete(e, err, onComplete)
}

// runOne runs one environment holding a gate slot.
func (s *Scheduler) runOne(ctx context.Context, envID string, req BatchRequest) core.RunResult {
	defer s.gate.release()
	return s.runner.Run(ctx, envID, req.Flow)
}

func (s *Scheduler) cancelRequested(e *taskEntry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel
}

// record stores one result and reports progress outside the lock.
func (s *Scheduler) record(e *taskEntry, res core.RunResult, onProgress ProgressFunc) {
	e.mu.Lock()
	e.task.Results[res.EnvironmentID] = res
	if res.Success {
		e.task.SuccessCount++
	} else {
		e.task.FailedCount++
	}
	taskID := e.task.TaskID
	percent := e.task.Percent()
	e.mu.Unlock()

	event := logger.L().Info().Str("task", taskID).Str("env", res.EnvironmentID).
		Bool("success", res.Success).Int("percent", percent).Int64("durationMs", res.DurationMs)
	if res.Error != nil {
		event = event.Str("error", res.Error.Error())
	}
	event.Msg("environment finished")

	if onProgress != nil {
		onProgress(taskID, percent, res.EnvironmentID)
	}
}

// complete moves the task to its terminal state and runs onComplete once.
func (s *Scheduler) complete(e *taskEntry, workerErr error, onComplete CompletionFunc) {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	status := core.TaskCompleted
	switch {
	case workerErr != nil:
		status = core.TaskFailed
	case len(e.task.Results) < len(e.task.Environments):
		status = core.TaskCancelled
	}
	now := time.Now()
	e.task.Status = status
	e.task.EndedAt = &now
	e.finished = true
	snapshot := e.task.Clone()
	e.mu.Unlock()

	defer close(e.done)
	s.metrics.BatchFinished(status.String())
	logger.L().Info().Str("task", snapshot.TaskID).Str("status", status.String()).
		Int("success", snapshot.SuccessCount).Int("failed", snapshot.FailedCount).Msg("batch finished")

	if onComplete != nil {
		defer func() {
			if r := recover(); r != nil {
				logger.L().Error().Str("task", snapshot.TaskID).Interface("panic", r).Msg("completion callback panicked")
			}
		}()
		onComplete(snapshot.TaskID, status, snapshot.Results)
	}
}
