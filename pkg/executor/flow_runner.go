package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/flow"
	"github.com/devicelab-dev/rpa-runner/pkg/interpreter"
	"github.com/devicelab-dev/rpa-runner/pkg/jsengine"
	"github.com/devicelab-dev/rpa-runner/pkg/logger"
)

// FlowRunner executes a single flow for one environment.
type FlowRunner struct {
	interp   *interpreter.Interpreter
	provider core.SessionProvider
	config   RunnerConfig
}

// NewFlowRunner creates a FlowRunner.
func NewFlowRunner(interp *interpreter.Interpreter, provider core.SessionProvider, cfg RunnerConfig) *FlowRunner {
	return &FlowRunner{
		interp:   interp,
		provider: provider,
		config:   cfg,
	}
}

// Run acquires a session for envID, executes the flow's steps in order and
// returns the outcome. It never panics and never returns without releasing
// the session when the flow asks for it.
func (fr *FlowRunner) Run(ctx context.Context, envID string, f *flow.Flow) (result core.RunResult) {
	start := time.Now()
	result = core.RunResult{EnvironmentID: envID, StepsTotal: len(f.Steps)}
	log := logger.L().With().Str("env", envID).Str("flow", f.Name).Logger()

	fr.config.Metrics.RunStarted()
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
		fr.config.Metrics.RunFinished(result.Success, core.KindOf(errOrNil(result.Error)).String(), time.Since(start))
		if fr.config.OnFlowEnd != nil {
			fr.config.OnFlowEnd(envID, result)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("flow runner panicked")
			result.Success = false
			if result.Error == nil {
				result.Error = core.ErrFault.WithMessage(fmt.Sprintf("panic during flow: %v", r))
			}
		}
	}()

	if fr.config.OnFlowStart != nil {
		fr.config.OnFlowStart(envID, f.Name)
	}

	session, err := fr.provider.Acquire(ctx, envID)
	if err != nil {
		log.Warn().Err(err).Msg("session acquisition failed")
		result.Error = core.ErrSessionUnavailable.WithCause(err)
		return result
	}

	// Deferred so a faulting flow still releases
	if f.OnFlowCloseBrowser {
		defer func() {
			if err := fr.provider.Release(context.WithoutCancel(ctx), session); err != nil {
				log.Warn().Err(err).Msg("session release failed")
			}
		}()
	}

	fr.runSteps(ctx, envID, f, session, &result)

	if f.ClearStateOnComplete() {
		if clearer, ok := session.(core.StateClearer); ok {
			if err := clearer.ClearState(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("clearing browser state failed")
			}
		}
	}
	return result
}

// runSteps executes the step loop and fills in counts and the first error.
func (fr *FlowRunner) runSteps(ctx context.Context, envID string, f *flow.Flow, session core.BrowserSession, result *core.RunResult) {
	engine := jsengine.New()
	engine.SetVariables(f.Variables)
	engine.SetVariable("ENV_ID", envID)

	aborted := false
	for i, step := range f.Steps {
		if err := ctx.Err(); err != nil {
			if result.Error == nil {
				result.Error = core.ErrCancelled.WithMessage(fmt.Sprintf("cancelled before step %d", i+1)).WithCause(err)
			}
			aborted = true
			break
		}

		if step.Disabled {
			result.StepsCompleted++
			continue
		}

		expanded := step.WithParams(engine.ExpandParams(step.Params))
		res := fr.interp.Execute(ctx, expanded, session)

		if fr.config.OnStepComplete != nil {
			fr.config.OnStepComplete(envID, i, expanded.Describe(), res)
		}

		if res.OK {
			result.StepsCompleted++
			fr.saveValue(engine, expanded, res, result)
			continue
		}

		result.StepsFailed++
		if result.Error == nil {
			result.Error = res.Error
		}
		logger.L().Debug().Str("env", envID).Int("step", i+1).Str("kind", string(step.Kind)).
			Str("error", res.Error.Error()).Msg("step failed")

		if f.AbortOnError() {
			aborted = true
			break
		}
	}

	result.Success = !aborted
	if result.Success {
		// Failures tolerated by the skip policy are counted but not reported
		result.Error = nil
	}
}

// saveValue stores an extracted value under the step's saveAs name so later
// steps can reference it as ${name}.
func (fr *FlowRunner) saveValue(engine *jsengine.Engine, step flow.Step, res core.StepResult, result *core.RunResult) {
	name := step.Params.String("saveAs", "")
	if name == "" || res.ExtractedValue == nil {
		return
	}
	if result.Extracted == nil {
		result.Extracted = make(map[string]any)
	}
	result.Extracted[name] = res.ExtractedValue
	if _, isBytes := res.ExtractedValue.([]byte); !isBytes {
		engine.SetVariable(name, res.ExtractedValue)
	}
}

func errOrNil(e *core.ExecutionError) error {
	if e == nil {
		return nil
	}
	return e
}
