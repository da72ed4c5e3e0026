package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/driver/mock"
	"github.com/devicelab-dev/rpa-runner/pkg/flow"
	"github.com/devicelab-dev/rpa-runner/pkg/interpreter"
)

func newInterp() *interpreter.Interpreter {
	return interpreter.New(interpreter.Config{PollInterval: 5 * time.Millisecond})
}

// pageWithButton seeds every session with one #btn and one #q input.
func pageWithButton() mock.Config {
	return mock.Config{Elements: map[string][]*mock.Element{
		"css:#btn":   {{ID: "btn", Text: "Go"}},
		"css:#q":     {{ID: "q"}},
		"css:.price": {{Text: "42.00"}},
	}}
}

func wait(ms int) flow.Step {
	return flow.Step{Kind: flow.KindWaitTime, Params: flow.Params{"durationMs": ms}}
}

func click(selector string) flow.Step {
	return flow.Step{Kind: flow.KindClick, Params: flow.Params{"selector": selector}}
}

func TestFlowRunner_AllStepsPass(t *testing.T) {
	provider := mock.New(pageWithButton())
	fr := NewFlowRunner(newInterp(), provider, RunnerConfig{})

	f := &flow.Flow{Steps: []flow.Step{
		{Kind: flow.KindNavigateTo, Params: flow.Params{"url": "https://shop.test"}},
		click("#btn"),
		wait(1),
	}}
	res := fr.Run(context.Background(), "E1", f)

	if !res.Success || res.Error != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.StepsCompleted != 3 || res.StepsTotal != 3 || res.StepsFailed != 0 {
		t.Errorf("counts = %d/%d failed %d", res.StepsCompleted, res.StepsTotal, res.StepsFailed)
	}
	if res.EnvironmentID != "E1" {
		t.Errorf("EnvironmentID = %q", res.EnvironmentID)
	}
}

func TestFlowRunner_StepErrorPolicy(t *testing.T) {
	steps := []flow.Step{
		click("#btn"),
		click("#missing"),
		click("#btn"),
		wait(1),
	}

	tests := []struct {
		name      string
		policy    flow.StepErrorPolicy
		success   bool
		completed int
		failed    int
		wantErr   bool
	}{
		{"skip continues", flow.OnErrorSkip, true, 3, 1, false},
		{"abort stops", flow.OnErrorAbort, false, 1, 1, true},
		{"default aborts", "", false, 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := NewFlowRunner(newInterp(), mock.New(pageWithButton()), RunnerConfig{})
			res := fr.Run(context.Background(), "E1", &flow.Flow{OnStepError: tt.policy, Steps: steps})

			if res.Success != tt.success {
				t.Errorf("Success = %v, want %v", res.Success, tt.success)
			}
			if res.StepsCompleted != tt.completed || res.StepsFailed != tt.failed {
				t.Errorf("completed = %d failed = %d, want %d/%d", res.StepsCompleted, res.StepsFailed, tt.completed, tt.failed)
			}
			if (res.Error != nil) != tt.wantErr {
				t.Errorf("Error = %v", res.Error)
			}
			if tt.wantErr && res.Error.Kind != core.ErrKindElementNotFound {
				t.Errorf("Error kind = %v, want element_not_found", res.Error.Kind)
			}
		})
	}
}

func TestFlowRunner_AcquireFailure(t *testing.T) {
	provider := mock.New(mock.Config{FailAcquire: map[string]error{
		"E1": errors.New("profile does not exist"),
	}})
	var started int
	fr := NewFlowRunner(newInterp(), provider, RunnerConfig{
		OnStepComplete: func(string, int, string, core.StepResult) { started++ },
	})

	res := fr.Run(context.Background(), "E1", &flow.Flow{Steps: []flow.Step{wait(1)}})

	if res.Success || res.StepsCompleted != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Error.Kind != core.ErrKindSessionUnavailable {
		t.Errorf("kind = %v, want session_unavailable", res.Error.Kind)
	}
	if got := res.Error.Error(); got != "browser session unavailable: profile does not exist" {
		t.Errorf("error = %q", got)
	}
	if started != 0 {
		t.Error("no step may run without a session")
	}
}

func TestFlowRunner_ZeroMatchesIsElementNotFound(t *testing.T) {
	fr := NewFlowRunner(newInterp(), mock.New(mock.Config{}), RunnerConfig{})
	res := fr.Run(context.Background(), "E1", &flow.Flow{Steps: []flow.Step{
		{Kind: flow.KindClick, Params: flow.Params{"selector": "#btn", "elementIndex": 1}},
	}})
	if res.Success || res.Error == nil || res.Error.Kind != core.ErrKindElementNotFound {
		t.Fatalf("result = %+v", res)
	}
}

func TestFlowRunner_ReleasesSession(t *testing.T) {
	tests := []struct {
		name      string
		close     bool
		steps     []flow.Step
		wantCount int
	}{
		{"released after success", true, []flow.Step{wait(1)}, 1},
		{"released after abort", true, []flow.Step{click("#nope"), wait(1)}, 1},
		{"kept open", false, []flow.Step{wait(1)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mock.New(mock.Config{})
			fr := NewFlowRunner(newInterp(), provider, RunnerConfig{})
			fr.Run(context.Background(), "E1", &flow.Flow{OnFlowCloseBrowser: tt.close, Steps: tt.steps})
			if got := len(provider.Released()); got != tt.wantCount {
				t.Errorf("released %d sessions, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestFlowRunner_PanicIsFaultAndReleases(t *testing.T) {
	provider := mock.New(mock.Config{})
	fr := NewFlowRunner(newInterp(), provider, RunnerConfig{
		OnStepComplete: func(string, int, string, core.StepResult) { panic("callback exploded") },
	})

	res := fr.Run(context.Background(), "E1", &flow.Flow{OnFlowCloseBrowser: true, Steps: []flow.Step{wait(1)}})
	if res.Success || res.Error == nil || res.Error.Kind != core.ErrKindFault {
		t.Fatalf("result = %+v", res)
	}
	if len(provider.Released()) != 1 {
		t.Error("session must be released after a fault")
	}
}

func TestFlowRunner_ClearState(t *testing.T) {
	provider := mock.New(mock.Config{})
	fr := NewFlowRunner(newInterp(), provider, RunnerConfig{})
	fr.Run(context.Background(), "E1", &flow.Flow{OnFlowComplete: flow.CompleteClearState, Steps: []flow.Step{wait(1)}})

	if !provider.Session("E1").Cleared() {
		t.Error("clearState should wipe browser state")
	}

	fr.Run(context.Background(), "E2", &flow.Flow{Steps: []flow.Step{wait(1)}})
	if provider.Session("E2").Cleared() {
		t.Error("keepState must not wipe browser state")
	}
}

func TestFlowRunner_DisabledStepsCountAsCompleted(t *testing.T) {
	fr := NewFlowRunner(newInterp(), mock.New(mock.Config{}), RunnerConfig{})
	disabled := click("#never")
	disabled.Disabled = true

	res := fr.Run(context.Background(), "E1", &flow.Flow{Steps: []flow.Step{disabled, wait(1)}})
	if !res.Success || res.StepsCompleted != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestFlowRunner_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fr := NewFlowRunner(newInterp(), mock.New(mock.Config{}), RunnerConfig{
		OnStepComplete: func(string, int, string, core.StepResult) { cancel() },
	})

	res := fr.Run(ctx, "E1", &flow.Flow{OnStepError: flow.OnErrorSkip, Steps: []flow.Step{wait(1), wait(1), wait(1)}})
	if res.Success {
		t.Fatal("cancelled run must not succeed")
	}
	if res.Error.Kind != core.ErrKindCancelled {
		t.Errorf("kind = %v, want cancelled", res.Error.Kind)
	}
	if res.StepsCompleted != 1 {
		t.Errorf("StepsCompleted = %d, want 1", res.StepsCompleted)
	}
}

func TestFlowRunner_VariablesAndSaveAs(t *testing.T) {
	provider := mock.New(pageWithButton())
	fr := NewFlowRunner(newInterp(), provider, RunnerConfig{})

	f := &flow.Flow{
		Variables: map[string]string{"BASE": "https://shop.test"},
		Steps: []flow.Step{
			{Kind: flow.KindNavigateTo, Params: flow.Params{"url": "${BASE}/env/${ENV_ID}"}},
			{Kind: flow.KindExtractText, Params: flow.Params{"selector": ".price", "saveAs": "price"}},
			{Kind: flow.KindInputText, Params: flow.Params{"selector": "#q", "text": "paid ${price}"}},
		},
	}
	res := fr.Run(context.Background(), "E7", f)
	if !res.Success {
		t.Fatalf("run failed: %v", res.Error)
	}

	s := provider.Session("E7")
	if s.URL() != "https://shop.test/env/E7" {
		t.Errorf("url = %q", s.URL())
	}
	if res.Extracted["price"] != "42.00" {
		t.Errorf("extracted = %v", res.Extracted)
	}
	found := false
	for _, c := range s.Calls() {
		if c == "SendKeys(css:#q[0],paid 42.00)" {
			found = true
		}
	}
	if !found {
		t.Errorf("expanded text not typed: %v", s.Calls())
	}
}

func TestFlowRunner_Callbacks(t *testing.T) {
	var events []string
	fr := NewFlowRunner(newInterp(), mock.New(mock.Config{}), RunnerConfig{
		OnFlowStart: func(env, name string) { events = append(events, "start:"+env+":"+name) },
		OnStepComplete: func(env string, idx int, desc string, res core.StepResult) {
			events = append(events, "step:"+desc)
		},
		OnFlowEnd: func(env string, res core.RunResult) { events = append(events, "end:"+env) },
	})
	fr.Run(context.Background(), "E1", &flow.Flow{Name: "login", Steps: []flow.Step{{Kind: flow.KindWaitTime, Name: "pause", Params: flow.Params{"durationMs": 1}}}})

	want := []string{"start:E1:login", "step:pause", "end:E1"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}
