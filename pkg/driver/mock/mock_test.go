package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

var (
	_ core.BrowserSession  = (*Session)(nil)
	_ core.StateClearer    = (*Session)(nil)
	_ core.SessionProvider = (*Provider)(nil)
)

func TestProvider_SessionsDoNotShareElements(t *testing.T) {
	p := New(Config{Elements: map[string][]*Element{
		"css:#q": {{ID: "q"}},
	}})
	ctx := context.Background()

	s1, err := p.Acquire(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := p.Acquire(ctx, "e2")

	els, _ := s1.FindElements(ctx, core.SelectorCSS, "#q")
	if err := s1.SendKeys(ctx, els[0], "hello"); err != nil {
		t.Fatal(err)
	}
	other, _ := s2.FindElements(ctx, core.SelectorCSS, "#q")
	if other[0].(*handle).el.Value != "" {
		t.Error("sessions should get independent element copies")
	}
	if p.Config.Elements["css:#q"][0].Value != "" {
		t.Error("seed elements must not be modified")
	}
}

func TestProvider_FailAcquire(t *testing.T) {
	want := errors.New("profile does not exist")
	p := New(Config{FailAcquire: map[string]error{"bad": want}})

	if _, err := p.Acquire(context.Background(), "bad"); !errors.Is(err, want) {
		t.Errorf("Acquire() error = %v, want %v", err, want)
	}
	if p.Session("bad") != nil {
		t.Error("failed acquire should not register a session")
	}
}

func TestProvider_Release(t *testing.T) {
	p := New(Config{})
	s, _ := p.Acquire(context.Background(), "e1")
	if err := p.Release(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if got := p.Released(); len(got) != 1 || got[0] != "e1" {
		t.Errorf("Released() = %v", got)
	}
}

func TestSession_NavigateHonorsContext(t *testing.T) {
	s := NewSession("e1")
	s.SetDelay(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := s.Navigate(ctx, "https://example.com"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Navigate() error = %v", err)
	}
	if s.URL() != "" {
		t.Error("url should be unchanged")
	}
}

func TestSession_TypeTextNeedsFocus(t *testing.T) {
	s := NewSession("e1")
	ctx := context.Background()
	if err := s.TypeText(ctx, "x"); err == nil {
		t.Error("expected error without focus")
	}

	el := &Element{}
	s.AddElements(core.SelectorCSS, "#q", el)
	els, _ := s.FindElements(ctx, core.SelectorCSS, "#q")
	_ = s.Focus(ctx, els[0])
	if err := s.TypeText(ctx, "ab"); err != nil {
		t.Fatal(err)
	}
	if el.Value != "ab" {
		t.Errorf("value = %q", el.Value)
	}
}

func TestSession_FailOn(t *testing.T) {
	s := NewSession("e1")
	s.FailOn("Reload", errors.New("net::ERR_ABORTED"))
	if err := s.Reload(context.Background()); err == nil {
		t.Error("expected injected failure")
	}
	if calls := s.Calls(); len(calls) != 1 || calls[0] != "Reload" {
		t.Errorf("calls = %v", calls)
	}
}

func TestSession_ClearState(t *testing.T) {
	s := NewSession("e1")
	if err := s.ClearState(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.Cleared() {
		t.Error("Cleared() = false")
	}
}
