package interpreter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/flow"
)

func (in *Interpreter) navigateTo(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	url := strings.TrimSpace(step.Params.String("url", ""))
	if url == "" {
		return outcome{}, invalid(step, "url is required")
	}
	return outcome{}, s.Navigate(ctx, url)
}

func (in *Interpreter) newTab(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	return outcome{}, s.NewTab(ctx, strings.TrimSpace(step.Params.String("url", "")))
}

func (in *Interpreter) closeTab(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	return outcome{}, s.CloseTab(ctx)
}

func (in *Interpreter) refreshPage(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	return outcome{}, s.Reload(ctx)
}

func (in *Interpreter) goBack(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	return outcome{}, s.GoBack(ctx)
}

// waitTime sleeps for a fixed duration or one drawn uniformly from
// [minMs, maxMs]. The extracted value is the milliseconds actually waited.
func (in *Interpreter) waitTime(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	var ms int64
	switch mode := step.Params.String("mode", "fixed"); mode {
	case "fixed":
		if !step.Params.Has("durationMs") {
			return outcome{}, invalid(step, "durationMs is required")
		}
		ms = int64(step.Params.Int("durationMs", -1))
		if ms < 0 {
			return outcome{}, invalid(step, "durationMs must be a non-negative number")
		}
	case "random":
		lo, hi := int64(step.Params.Int("minMs", -1)), int64(step.Params.Int("maxMs", -1))
		if lo < 0 || hi < 0 {
			return outcome{}, invalid(step, "minMs and maxMs are required")
		}
		if lo > hi {
			return outcome{}, invalid(step, "minMs (%d) is greater than maxMs (%d)", lo, hi)
		}
		ms = in.randBetween(lo, hi)
	default:
		return outcome{}, invalid(step, "unknown mode %q", mode)
	}

	if err := sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
		return outcome{}, err
	}
	return outcome{value: ms}, nil
}

// scrollPage scrolls to a named position or by a signed pixel distance.
// Scrolling is always smooth.
func (in *Interpreter) scrollPage(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	spec := core.ScrollSpec{
		Mode:   core.ScrollMode(step.Params.String("mode", string(core.ScrollToPosition))),
		Smooth: true,
	}
	switch spec.Mode {
	case core.ScrollToPosition:
		spec.Position = strings.ToLower(step.Params.String("position", "bottom"))
		switch spec.Position {
		case "top", "middle", "bottom":
		default:
			return outcome{}, invalid(step, "unknown position %q", spec.Position)
		}
	case core.ScrollByDistance:
		if !step.Params.Has("distance") {
			return outcome{}, invalid(step, "distance is required")
		}
		spec.Distance = step.Params.Int("distance", 0)
	default:
		return outcome{}, invalid(step, "unknown mode %q", spec.Mode)
	}
	return outcome{}, s.Scroll(ctx, spec)
}

// keyboard presses key with modifiers held. When a selector is given the
// target is focused first.
func (in *Interpreter) keyboard(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	key, err := normalizeKey(step.Params.String("key", ""))
	if err != nil {
		return outcome{}, invalid(step, "%v", err)
	}
	var mods []string
	for _, m := range step.Params.StringList("modifiers") {
		mod, err := normalizeModifier(m)
		if err != nil {
			return outcome{}, invalid(step, "%v", err)
		}
		mods = append(mods, mod)
	}

	var out outcome
	if step.Params.Has("selector") {
		el, notes, err := in.prepare(ctx, step, s)
		if err != nil {
			return outcome{}, err
		}
		_, attempts, err := in.focusElement(ctx, s, el)
		out.attempts = append(notes, attempts...)
		if err != nil {
			return out, err
		}
	}

	times := step.Params.Int("repeat", 1)
	if times < 1 {
		return out, invalid(step, "repeat must be >= 1, got %d", times)
	}
	for i := 0; i < times; i++ {
		if err := chord(ctx, s, mods, key); err != nil {
			return out, err
		}
	}
	return out, nil
}

// chord holds mods in order, presses key, then releases mods in reverse.
// Modifiers are released even when the press fails or the step times out.
func chord(ctx context.Context, s core.BrowserSession, mods []string, key string) (err error) {
	release := context.WithoutCancel(ctx)
	held := 0
	defer func() {
		for i := held - 1; i >= 0; i-- {
			if uerr := s.KeyUp(release, mods[i]); uerr != nil && err == nil {
				err = uerr
			}
		}
	}()

	for _, m := range mods {
		if err := s.KeyDown(ctx, m); err != nil {
			return err
		}
		held++
	}
	if err := s.KeyDown(ctx, key); err != nil {
		return err
	}
	return s.KeyUp(release, key)
}

func (in *Interpreter) screenshot(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	png, err := s.Screenshot(ctx)
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: png}, nil
}

// executeScript runs a script body in the page, optionally bound to an
// element as this. The body is wrapped in a function, so it can return.
func (in *Interpreter) executeScript(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	body := step.Params.String("script", "")
	if strings.TrimSpace(body) == "" {
		return outcome{}, invalid(step, "script is required")
	}

	var el core.ElementHandle
	if step.Params.Has("selector") {
		var err error
		if el, _, err = in.locate(ctx, step, s); err != nil {
			return outcome{}, err
		}
	}

	var args []any
	if raw, ok := step.Params["args"].([]any); ok {
		args = raw
	}
	v, err := s.ExecuteScript(ctx, fmt.Sprintf("function() {\n%s\n}", body), el, args...)
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: v}, nil
}
