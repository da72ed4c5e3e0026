package interpreter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/flow"
)

// Page scripts for the script strategy. Each runs with the element as this.
const (
	scriptClick = `function(count) {
	for (let i = 0; i < count; i++) { this.click(); }
	if (count === 2) { this.dispatchEvent(new MouseEvent('dblclick', {bubbles: true})); }
}`
	scriptContextMenu = `function() {
	this.dispatchEvent(new MouseEvent('contextmenu', {bubbles: true, button: 2}));
}`
	scriptSetValue = `function(v, append) {
	this.focus();
	this.value = append ? this.value + v : v;
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
}`
	scriptHover = `function() {
	for (const type of ['mouseover', 'mouseenter', 'mousemove']) {
		this.dispatchEvent(new MouseEvent(type, {bubbles: true}));
	}
}`
	scriptFocus        = `function() { this.focus(); }`
	scriptInnerText    = `function() { return this.innerText; }`
	scriptGetAttribute = `function(name) { return this.getAttribute(name); }`
)

// locate resolves the step's selector to exactly the elementIndex-th match.
// waitMs polls for the element before giving up; zero means one lookup.
func (in *Interpreter) locate(ctx context.Context, step flow.Step, s core.BrowserSession) (core.ElementHandle, flow.Selector, error) {
	sel, err := flow.SelectorFrom(step.Params)
	if err != nil {
		return nil, sel, invalid(step, "%v", err)
	}

	wait := step.Params.Millis("waitMs", 0)
	deadline := time.Now().Add(wait)
	for {
		els, err := s.FindElements(ctx, sel.Kind, sel.Value)
		if err != nil {
			if ctx.Err() != nil {
				return nil, sel, ctx.Err()
			}
			return nil, sel, core.ErrElementNotFound.
				WithMessage(fmt.Sprintf("lookup of %s failed", sel.Describe())).
				WithCause(err)
		}
		if len(els) >= sel.Index {
			return els[sel.Index-1], sel, nil
		}
		if !time.Now().Before(deadline) {
			return nil, sel, core.ErrElementNotFound.
				WithMessage(fmt.Sprintf("element %s not found (%d match(es))", sel.Describe(), len(els))).
				WithDetails(map[string]any{"matches": len(els), "elementIndex": sel.Index})
		}
		if err := sleep(ctx, in.cfg.PollInterval); err != nil {
			return nil, sel, err
		}
	}
}

// prepare locates the target and scrolls it into view. A failed scroll is
// recorded as an attempt and does not stop the interaction.
func (in *Interpreter) prepare(ctx context.Context, step flow.Step, s core.BrowserSession) (core.ElementHandle, []string, error) {
	el, _, err := in.locate(ctx, step, s)
	if err != nil {
		return nil, nil, err
	}
	var notes []string
	if err := s.ScrollIntoView(ctx, el); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		notes = append(notes, fmt.Sprintf("scrollIntoView: %v", err))
	}
	return el, notes, nil
}

func mouseButton(step flow.Step) (core.MouseButton, error) {
	b := core.MouseButton(strings.ToLower(step.Params.String("button", string(core.ButtonLeft))))
	switch b {
	case core.ButtonLeft, core.ButtonMiddle, core.ButtonRight:
		return b, nil
	}
	return "", invalid(step, "unknown button %q", b)
}

func (in *Interpreter) click(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	button, err := mouseButton(step)
	if err != nil {
		return outcome{}, err
	}
	count := step.Params.Int("clickCount", 1)
	if count != 1 && count != 2 {
		return outcome{}, invalid(step, "clickCount must be 1 or 2, got %d", count)
	}

	el, notes, err := in.prepare(ctx, step, s)
	if err != nil {
		return outcome{}, err
	}

	script := strategy{StrategyScript, func(ctx context.Context) error {
		_, err := s.ExecuteScript(ctx, scriptClick, el, count)
		return err
	}}
	if button == core.ButtonRight {
		script = strategy{StrategyScript, func(ctx context.Context) error {
			_, err := s.ExecuteScript(ctx, scriptContextMenu, el)
			return err
		}}
	}

	name, attempts, err := firstSuccess(ctx, "click "+el.Describe(),
		strategy{StrategyNative, func(ctx context.Context) error { return s.Click(ctx, el, button, count) }},
		strategy{StrategyPointer, func(ctx context.Context) error { return s.PointerClick(ctx, el, button, count) }},
		script,
	)
	return outcome{strategy: name, attempts: append(notes, attempts...)}, err
}

func (in *Interpreter) inputText(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	if !step.Params.Has("text") {
		return outcome{}, invalid(step, "text is required")
	}
	text := step.Params.String("text", "")
	interval := step.Params.Millis("intervalMs", 0)

	el, notes, err := in.prepare(ctx, step, s)
	if err != nil {
		return outcome{}, err
	}

	if step.Params.Bool("clearBeforeInput", false) {
		_, attempts, err := firstSuccess(ctx, "clear "+el.Describe(),
			strategy{StrategyNative, func(ctx context.Context) error { return s.Clear(ctx, el) }},
			strategy{StrategyPointer, func(ctx context.Context) error {
				if err := s.PointerClick(ctx, el, core.ButtonLeft, 1); err != nil {
					return err
				}
				if err := chord(ctx, s, []string{"Control"}, "a"); err != nil {
					return err
				}
				return chord(ctx, s, nil, "Backspace")
			}},
			strategy{StrategyScript, func(ctx context.Context) error {
				_, err := s.ExecuteScript(ctx, scriptSetValue, el, "", false)
				return err
			}},
		)
		notes = append(notes, attempts...)
		if err != nil {
			return outcome{attempts: notes}, err
		}
	}

	name, attempts, err := firstSuccess(ctx, "input into "+el.Describe(),
		strategy{StrategyNative, func(ctx context.Context) error {
			return typeChunks(ctx, text, interval, func(chunk string) error { return s.SendKeys(ctx, el, chunk) })
		}},
		strategy{StrategyPointer, func(ctx context.Context) error {
			if err := s.PointerClick(ctx, el, core.ButtonLeft, 1); err != nil {
				return err
			}
			return typeChunks(ctx, text, interval, func(chunk string) error { return s.TypeText(ctx, chunk) })
		}},
		strategy{StrategyScript, func(ctx context.Context) error {
			_, err := s.ExecuteScript(ctx, scriptSetValue, el, text, true)
			return err
		}},
	)
	return outcome{strategy: name, attempts: append(notes, attempts...)}, err
}

// typeChunks sends text in one call, or rune by rune with a pause between
// keystrokes when interval is set.
func typeChunks(ctx context.Context, text string, interval time.Duration, send func(string) error) error {
	if interval <= 0 {
		return send(text)
	}
	for i, r := range []rune(text) {
		if i > 0 {
			if err := sleep(ctx, interval); err != nil {
				return err
			}
		}
		if err := send(string(r)); err != nil {
			return err
		}
	}
	return nil
}

// hover has no native tier: CDP exposes no element-level hover, only
// synthesized mouse events.
func (in *Interpreter) hover(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	el, notes, err := in.prepare(ctx, step, s)
	if err != nil {
		return outcome{}, err
	}
	name, attempts, err := firstSuccess(ctx, "hover "+el.Describe(),
		strategy{StrategyPointer, func(ctx context.Context) error { return s.PointerMove(ctx, el) }},
		strategy{StrategyScript, func(ctx context.Context) error {
			_, err := s.ExecuteScript(ctx, scriptHover, el)
			return err
		}},
	)
	return outcome{strategy: name, attempts: append(notes, attempts...)}, err
}

func (in *Interpreter) focus(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	el, notes, err := in.prepare(ctx, step, s)
	if err != nil {
		return outcome{}, err
	}
	name, attempts, err := in.focusElement(ctx, s, el)
	return outcome{strategy: name, attempts: append(notes, attempts...)}, err
}

func (in *Interpreter) focusElement(ctx context.Context, s core.BrowserSession, el core.ElementHandle) (string, []string, error) {
	return firstSuccess(ctx, "focus "+el.Describe(),
		strategy{StrategyNative, func(ctx context.Context) error { return s.Focus(ctx, el) }},
		strategy{StrategyPointer, func(ctx context.Context) error { return s.PointerClick(ctx, el, core.ButtonLeft, 1) }},
		strategy{StrategyScript, func(ctx context.Context) error {
			_, err := s.ExecuteScript(ctx, scriptFocus, el)
			return err
		}},
	)
}

func (in *Interpreter) extractText(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	el, _, err := in.locate(ctx, step, s)
	if err != nil {
		return outcome{}, err
	}

	var value string
	read := func(fn string, args ...any) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			v, err := s.ExecuteScript(ctx, fn, el, args...)
			if err != nil {
				return err
			}
			if v != nil {
				value = fmt.Sprint(v)
			}
			return nil
		}
	}

	var strategies []strategy
	if attr := step.Params.String("attribute", ""); attr != "" {
		strategies = append(strategies, strategy{StrategyScript, read(scriptGetAttribute, attr)})
	} else {
		strategies = append(strategies,
			strategy{StrategyNative, func(ctx context.Context) error {
				t, err := s.Text(ctx, el)
				if err != nil {
					return err
				}
				value = t
				return nil
			}},
			strategy{StrategyScript, read(scriptInnerText)},
		)
	}

	name, attempts, err := firstSuccess(ctx, "extract from "+el.Describe(), strategies...)
	if err != nil {
		return outcome{attempts: attempts}, err
	}
	if step.Params.Bool("trim", true) {
		value = strings.TrimSpace(value)
	}
	return outcome{value: value, strategy: name, attempts: attempts}, nil
}

// waitForElement polls until the selector has at least elementIndex matches.
func (in *Interpreter) waitForElement(ctx context.Context, step flow.Step, s core.BrowserSession) (outcome, error) {
	sel, err := flow.SelectorFrom(step.Params)
	if err != nil {
		return outcome{}, invalid(step, "%v", err)
	}
	for {
		els, err := s.FindElements(ctx, sel.Kind, sel.Value)
		if err == nil && len(els) >= sel.Index {
			return outcome{}, nil
		}
		if serr := sleep(ctx, in.cfg.PollInterval); serr != nil {
			if err != nil {
				return outcome{}, fmt.Errorf("waiting for %s: %w (last lookup: %v)", sel.Describe(), serr, err)
			}
			return outcome{}, fmt.Errorf("waiting for %s: %w", sel.Describe(), serr)
		}
	}
}
