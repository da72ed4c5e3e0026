package cdp

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sign in", `"Sign in"`},
		{`say "hi"`, `'say "hi"'`},
		{`it's "x"`, `concat("it's ", '"', "x", '"')`},
	}
	for _, tt := range tests {
		if got := xpathLiteral(tt.in); got != tt.want {
			t.Errorf("xpathLiteral(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTextXPath(t *testing.T) {
	want := `//*[contains(normalize-space(text()), "Buy now")]`
	if got := textXPath("Buy now"); got != want {
		t.Errorf("textXPath() = %s", got)
	}
}

func TestScrollExpr(t *testing.T) {
	tests := []struct {
		name    string
		spec    core.ScrollSpec
		want    string
		wantErr bool
	}{
		{"top", core.ScrollSpec{Mode: core.ScrollToPosition, Position: "top", Smooth: true},
			`window.scrollTo({top: 0, behavior: "smooth"})`, false},
		{"default bottom", core.ScrollSpec{Mode: core.ScrollToPosition},
			`window.scrollTo({top: document.documentElement.scrollHeight, behavior: "auto"})`, false},
		{"distance", core.ScrollSpec{Mode: core.ScrollByDistance, Distance: -200, Smooth: true},
			`window.scrollBy({top: -200, behavior: "smooth"})`, false},
		{"bad position", core.ScrollSpec{Mode: core.ScrollToPosition, Position: "side"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scrollExpr(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("scrollExpr() = %s", got)
			}
		})
	}
}

func TestLookupKey(t *testing.T) {
	tests := []struct {
		key      string
		code     string
		keyCode  int64
		text     string
		modifier input.Modifier
	}{
		{"Control", "ControlLeft", 17, "", input.ModifierCtrl},
		{"Shift", "ShiftLeft", 16, "", input.ModifierShift},
		{"Enter", "Enter", 13, "\r", 0},
		{"a", "KeyA", 65, "a", 0},
		{"7", "Digit7", 55, "7", 0},
		{" ", "Space", 32, " ", 0},
		{"F5", "F5", 116, "", 0},
	}
	for _, tt := range tests {
		def := lookupKey(tt.key)
		if def.code != tt.code || def.keyCode != tt.keyCode || def.text != tt.text || def.modifier != tt.modifier {
			t.Errorf("lookupKey(%q) = %+v", tt.key, def)
		}
	}
}

func TestBoundedFollowsCaller(t *testing.T) {
	tabCtx, tabCancel := context.WithCancel(context.Background())
	defer tabCancel()

	ctx, cancel := context.WithCancel(context.Background())
	runCtx, stop := bounded(ctx, tabCtx)
	defer stop()

	cancel()
	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("bounded context ignored caller cancellation")
	}
	if tabCtx.Err() != nil {
		t.Error("caller cancellation must not close the tab")
	}
}

func TestBoundedCopiesDeadline(t *testing.T) {
	deadline := time.Now().Add(time.Minute)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	runCtx, stop := bounded(ctx, context.Background())
	defer stop()
	if got, ok := runCtx.Deadline(); !ok || !got.Equal(deadline) {
		t.Errorf("Deadline() = %v, %v", got, ok)
	}
}

func TestCloseLastTab(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSession("E1", ctx, cancel, func() {})
	if err := s.CloseTab(context.Background()); err == nil {
		t.Error("closing the only tab should fail")
	}
}

func TestForeignHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSession("E1", ctx, cancel, func() {})

	var foreign core.ElementHandle = stubHandle("x")
	if err := s.Click(context.Background(), foreign, core.ButtonLeft, 1); err == nil {
		t.Error("expected error for a handle from another driver")
	}
}

type stubHandle string

func (h stubHandle) Describe() string { return string(h) }
