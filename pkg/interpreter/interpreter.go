// Package interpreter executes single flow steps against a browser session.
//
// Dispatch is by step kind to one handler method. Handlers are stateless
// given (step, session); the only interpreter state is the random source
// used by randomized waits. Every outcome is converted to a core.StepResult:
// nothing a handler does (error, hang or panic) escapes Execute.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/flow"
	"github.com/devicelab-dev/rpa-runner/pkg/logger"
	"github.com/devicelab-dev/rpa-runner/pkg/metrics"
)

// Default timeouts
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultElementTimeout    = 15 * time.Second
	DefaultPollInterval      = 250 * time.Millisecond
)

// Config configures an Interpreter.
type Config struct {
	NavigationTimeout time.Duration // Navigation and wait steps
	ElementTimeout    time.Duration // Element lookup steps
	PollInterval      time.Duration // waitForElement and implicit waits
	Rand              *rand.Rand    // Source for randomized waits
	Metrics           *metrics.Collector
}

// handlerFunc executes one step kind.
type handlerFunc func(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error)

// outcome is what a handler reports on success.
type outcome struct {
	value    any
	strategy string
	attempts []string
}

// Interpreter executes steps.
type Interpreter struct {
	cfg      Config
	handlers map[flow.StepKind]handlerFunc

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an Interpreter with its dispatch table.
func New(cfg Config) *Interpreter {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = DefaultElementTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	in := &Interpreter{cfg: cfg, rng: rng}
	in.handlers = make(map[flow.StepKind]handlerFunc, len(flow.Kinds()))
	for _, kind := range flow.Kinds() {
		if h := in.handlerFor(kind); h != nil {
			in.handlers[kind] = h
		}
	}
	return in
}

// handlerFor maps each kind to its handler. Every kind in flow.Kinds must
// have a case here.
func (in *Interpreter) handlerFor(kind flow.StepKind) handlerFunc {
	switch kind {
	case flow.KindNavigateTo:
		return in.navigateTo
	case flow.KindNewTab:
		return in.newTab
	case flow.KindCloseTab:
		return in.closeTab
	case flow.KindRefreshPage:
		return in.refreshPage
	case flow.KindGoBack:
		return in.goBack
	case flow.KindWaitTime:
		return in.waitTime
	case flow.KindWaitForElement:
		return in.waitForElement
	case flow.KindClick:
		return in.click
	case flow.KindInputText:
		return in.inputText
	case flow.KindHover:
		return in.hover
	case flow.KindFocus:
		return in.focus
	case flow.KindScrollPage:
		return in.scrollPage
	case flow.KindKeyboard:
		return in.keyboard
	case flow.KindScreenshot:
		return in.screenshot
	case flow.KindExtractText:
		return in.extractText
	case flow.KindExecuteScript:
		return in.executeScript
	default:
		return nil
	}
}

// Supports reports whether kind has a handler.
func (in *Interpreter) Supports(kind flow.StepKind) bool {
	_, ok := in.handlers[kind]
	return ok
}

type handlerResult struct {
	out outcome
	err error
}

// Execute runs one step and never blocks past the step's timeout.
func (in *Interpreter) Execute(ctx context.Context, step flow.Step, session core.BrowserSession) (res core.StepResult) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		in.cfg.Metrics.StepExecuted(string(step.Kind), res.OK, res.Strategy)
	}()

	if msg, ok := step.Params["_parseError"]; ok {
		return failed(core.ErrInvalidParams.WithMessage(fmt.Sprintf("malformed %s step: %v", step.Kind, msg)), nil)
	}

	h, ok := in.handlers[step.Kind]
	if !ok {
		return failed(core.ErrUnsupportedStep.WithMessage(fmt.Sprintf("unsupported step type %q", step.Kind)), nil)
	}

	stepCtx, cancel := context.WithTimeout(ctx, in.timeoutFor(step))
	defer cancel()

	// Buffered so an abandoned handler can still finish and exit
	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.L().Error().Str("step", step.Describe()).Interface("panic", r).Msg("step handler panicked")
				done <- handlerResult{err: core.ErrFault.WithMessage(fmt.Sprintf("panic in %s handler: %v", step.Kind, r))}
			}
		}()
		out, err := h(stepCtx, step, session)
		done <- handlerResult{out: out, err: err}
	}()

	var r handlerResult
	select {
	case r = <-done:
	case <-stepCtx.Done():
		// Prefer a result that raced with the deadline
		select {
		case r = <-done:
		default:
			r = handlerResult{err: stepCtx.Err()}
		}
	}

	if r.err != nil {
		return failed(in.classify(ctx, step, r.err), r.out.attempts)
	}
	return core.StepResult{
		OK:             true,
		ExtractedValue: r.out.value,
		Strategy:       r.out.strategy,
		Attempts:       r.out.attempts,
	}
}

func failed(err *core.ExecutionError, attempts []string) core.StepResult {
	return core.StepResult{OK: false, Error: err, Attempts: attempts}
}

// classify converts a handler error into a structured error.
func (in *Interpreter) classify(parent context.Context, step flow.Step, err error) *core.ExecutionError {
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrTimeout.WithMessage(fmt.Sprintf("%s timed out after %s", step.Describe(), in.timeoutFor(step))).WithCause(err)
	}
	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		return core.ErrCancelled.WithCause(err)
	}
	return core.ErrFault.WithMessage(fmt.Sprintf("%s failed", step.Describe())).WithCause(err)
}

// timeoutFor returns the step's deadline: timeoutMs when set, otherwise the
// default for its kind. Waits always get room for their own duration.
func (in *Interpreter) timeoutFor(step flow.Step) time.Duration {
	if d := step.Params.Millis("timeoutMs", 0); d > 0 {
		return d
	}
	if step.Kind == flow.KindWaitTime {
		upper := step.Params.Millis("durationMs", 0)
		if m := step.Params.Millis("maxMs", 0); m > upper {
			upper = m
		}
		if upper+time.Second > in.cfg.NavigationTimeout {
			return upper + time.Second
		}
		return in.cfg.NavigationTimeout
	}
	if step.Kind.TargetsElement() {
		return in.cfg.ElementTimeout
	}
	return in.cfg.NavigationTimeout
}

// randBetween draws uniformly from [lo, hi].
func (in *Interpreter) randBetween(lo, hi int64) int64 {
	in.rngMu.Lock()
	defer in.rngMu.Unlock()
	return lo + in.rng.Int64N(hi-lo+1)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// invalid builds an InvalidParams error for step.
func invalid(step flow.Step, format string, args ...any) *core.ExecutionError {
	return core.ErrInvalidParams.WithMessage(fmt.Sprintf("%s: %s", step.Kind, fmt.Sprintf(format, args...)))
}
