// Package mock provides an in-memory browser for testing without a real browser.
package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

// Element is a fake DOM element.
type Element struct {
	ID    string
	Text  string
	Value string
	Attrs map[string]string
}

type handle struct {
	key   string
	index int
	el    *Element
}

func (h *handle) Describe() string { return fmt.Sprintf("%s[%d]", h.key, h.index) }

// Config configures mock browser behavior.
type Config struct {
	// ActionDelay adds artificial delay to navigation, honoring the context
	ActionDelay time.Duration
	// FailAcquire maps environment IDs to acquisition errors
	FailAcquire map[string]error
	// Elements seeds every new session; keys are "<kind>:<value>"
	Elements map[string][]*Element
}

// Session is a mock implementation of core.BrowserSession.
type Session struct {
	EnvironmentID string

	mu       sync.Mutex
	elements map[string][]*Element
	fail     map[string]error
	calls    []string
	delay    time.Duration
	url      string
	history  []string
	tabs     int
	cleared  bool
	focused  *Element
	scriptFn func(fn string, el *Element, args []any) (any, error)
}

// NewSession creates an empty session with one tab.
func NewSession(envID string) *Session {
	return &Session{
		EnvironmentID: envID,
		elements:      make(map[string][]*Element),
		fail:          make(map[string]error),
		tabs:          1,
	}
}

// AddElements registers elements for a selector.
func (s *Session) AddElements(kind core.SelectorKind, value string, els ...*Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(kind) + ":" + value
	s.elements[key] = append(s.elements[key], els...)
}

// FailOn makes the named method return err (e.g. "Click", "PointerClick").
func (s *Session) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

// SetDelay sets the delay applied to navigation calls.
func (s *Session) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// OnScript overrides ExecuteScript. By default scripts set value on inputs,
// click, focus and read innerText/attributes heuristically.
func (s *Session) OnScript(fn func(fn string, el *Element, args []any) (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scriptFn = fn
}

// Calls returns the recorded calls in order.
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// URL returns the current page URL.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Tabs returns the number of open tabs.
func (s *Session) Tabs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabs
}

// Cleared reports whether ClearState was called.
func (s *Session) Cleared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared
}

// record logs a call and returns the injected failure for method, if any.
func (s *Session) record(method, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if detail != "" {
		s.calls = append(s.calls, method+"("+detail+")")
	} else {
		s.calls = append(s.calls, method)
	}
	return s.fail[method]
}

func elementOf(el core.ElementHandle) (*handle, error) {
	h, ok := el.(*handle)
	if !ok || h == nil {
		return nil, errors.New("foreign element handle")
	}
	return h, nil
}

// FindElements returns the elements registered for the selector.
func (s *Session) FindElements(ctx context.Context, kind core.SelectorKind, value string) ([]core.ElementHandle, error) {
	key := string(kind) + ":" + value
	if err := s.record("FindElements", key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	els := s.elements[key]
	out := make([]core.ElementHandle, len(els))
	for i, el := range els {
		out[i] = &handle{key: key, index: i, el: el}
	}
	return out, nil
}

// ScrollIntoView records the scroll.
func (s *Session) ScrollIntoView(ctx context.Context, el core.ElementHandle) error {
	return s.record("ScrollIntoView", el.Describe())
}

// Click performs a native click.
func (s *Session) Click(ctx context.Context, el core.ElementHandle, button core.MouseButton, clickCount int) error {
	return s.record("Click", fmt.Sprintf("%s,%s,%d", el.Describe(), button, clickCount))
}

// SendKeys appends text to the element's value.
func (s *Session) SendKeys(ctx context.Context, el core.ElementHandle, text string) error {
	h, err := elementOf(el)
	if err != nil {
		return err
	}
	if err := s.record("SendKeys", fmt.Sprintf("%s,%s", el.Describe(), text)); err != nil {
		return err
	}
	s.mu.Lock()
	h.el.Value += text
	s.mu.Unlock()
	return nil
}

// Clear empties the element's value.
func (s *Session) Clear(ctx context.Context, el core.ElementHandle) error {
	h, err := elementOf(el)
	if err != nil {
		return err
	}
	if err := s.record("Clear", el.Describe()); err != nil {
		return err
	}
	s.mu.Lock()
	h.el.Value = ""
	s.mu.Unlock()
	return nil
}

// Focus focuses the element.
func (s *Session) Focus(ctx context.Context, el core.ElementHandle) error {
	h, err := elementOf(el)
	if err != nil {
		return err
	}
	if err := s.record("Focus", el.Describe()); err != nil {
		return err
	}
	s.mu.Lock()
	s.focused = h.el
	s.mu.Unlock()
	return nil
}

// Text returns the element's text.
func (s *Session) Text(ctx context.Context, el core.ElementHandle) (string, error) {
	h, err := elementOf(el)
	if err != nil {
		return "", err
	}
	if err := s.record("Text", el.Describe()); err != nil {
		return "", err
	}
	return h.el.Text, nil
}

// PointerMove records a hover.
func (s *Session) PointerMove(ctx context.Context, el core.ElementHandle) error {
	return s.record("PointerMove", el.Describe())
}

// PointerClick clicks through the pointer and focuses the element.
func (s *Session) PointerClick(ctx context.Context, el core.ElementHandle, button core.MouseButton, clickCount int) error {
	h, err := elementOf(el)
	if err != nil {
		return err
	}
	if err := s.record("PointerClick", fmt.Sprintf("%s,%s,%d", el.Describe(), button, clickCount)); err != nil {
		return err
	}
	s.mu.Lock()
	s.focused = h.el
	s.mu.Unlock()
	return nil
}

// KeyDown records a key press.
func (s *Session) KeyDown(ctx context.Context, key string) error {
	return s.record("KeyDown", key)
}

// KeyUp records a key release. Backspace after a select-all empties the
// focused element.
func (s *Session) KeyUp(ctx context.Context, key string) error {
	if err := s.record("KeyUp", key); err != nil {
		return err
	}
	if key == "Backspace" || key == "Delete" {
		s.mu.Lock()
		if s.focused != nil {
			s.focused.Value = ""
		}
		s.mu.Unlock()
	}
	return nil
}

// TypeText appends text to the focused element.
func (s *Session) TypeText(ctx context.Context, text string) error {
	if err := s.record("TypeText", text); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focused == nil {
		return errors.New("no focused element")
	}
	s.focused.Value += text
	return nil
}

// ExecuteScript runs the override or a small heuristic interpreter.
func (s *Session) ExecuteScript(ctx context.Context, fn string, el core.ElementHandle, args ...any) (any, error) {
	var target *Element
	detail := "page"
	if el != nil {
		h, err := elementOf(el)
		if err != nil {
			return nil, err
		}
		target = h.el
		detail = el.Describe()
	}
	if err := s.record("ExecuteScript", detail); err != nil {
		return nil, err
	}

	s.mu.Lock()
	override := s.scriptFn
	s.mu.Unlock()
	if override != nil {
		return override(fn, target, args)
	}
	if target == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(fn, "getAttribute") && len(args) > 0:
		return target.Attrs[fmt.Sprint(args[0])], nil
	case strings.Contains(fn, "innerText"):
		return target.Text, nil
	case strings.Contains(fn, ".value") && len(args) > 0:
		if len(args) > 1 && args[1] == true {
			target.Value += fmt.Sprint(args[0])
		} else {
			target.Value = fmt.Sprint(args[0])
		}
	case strings.Contains(fn, "focus"):
		s.focused = target
	}
	return nil, nil
}

// Navigate loads url after the configured delay.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.record("Navigate", url); err != nil {
		return err
	}
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url != "" {
		s.history = append(s.history, s.url)
	}
	s.url = url
	return nil
}

// Reload records a reload.
func (s *Session) Reload(ctx context.Context) error {
	return s.record("Reload", "")
}

// GoBack returns to the previous URL.
func (s *Session) GoBack(ctx context.Context) error {
	if err := s.record("GoBack", ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 {
		s.url = s.history[n-1]
		s.history = s.history[:n-1]
	}
	return nil
}

// Scroll records the scroll spec.
func (s *Session) Scroll(ctx context.Context, spec core.ScrollSpec) error {
	detail := fmt.Sprintf("%s,%s,%d,smooth=%t", spec.Mode, spec.Position, spec.Distance, spec.Smooth)
	return s.record("Scroll", detail)
}

// NewTab opens a tab.
func (s *Session) NewTab(ctx context.Context, url string) error {
	if err := s.record("NewTab", url); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs++
	if url != "" {
		s.url = url
	}
	return nil
}

// CloseTab closes the current tab.
func (s *Session) CloseTab(ctx context.Context) error {
	if err := s.record("CloseTab", ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabs <= 1 {
		return errors.New("cannot close the last tab")
	}
	s.tabs--
	return nil
}

// Screenshot returns a mock PNG image.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.record("Screenshot", ""); err != nil {
		return nil, err
	}
	// Minimal valid PNG (1x1 transparent pixel)
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// ClearState wipes browsing data.
func (s *Session) ClearState(ctx context.Context) error {
	if err := s.record("ClearState", ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = true
	return nil
}

// Provider is a mock implementation of core.SessionProvider.
type Provider struct {
	Config Config

	mu       sync.Mutex
	sessions map[string]*Session
	released []string
}

// New creates a new mock provider.
func New(cfg Config) *Provider {
	return &Provider{
		Config:   cfg,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns a fresh session seeded with Config.Elements.
func (p *Provider) Acquire(ctx context.Context, environmentID string) (core.BrowserSession, error) {
	if err, ok := p.Config.FailAcquire[environmentID]; ok {
		return nil, err
	}

	s := NewSession(environmentID)
	s.delay = p.Config.ActionDelay
	for key, els := range p.Config.Elements {
		// Each session gets its own copies so concurrent runs don't share state
		for _, el := range els {
			cp := *el
			s.elements[key] = append(s.elements[key], &cp)
		}
	}

	p.mu.Lock()
	p.sessions[environmentID] = s
	p.mu.Unlock()
	return s, nil
}

// Release records the release.
func (p *Provider) Release(ctx context.Context, session core.BrowserSession) error {
	s, ok := session.(*Session)
	if !ok {
		return errors.New("foreign session")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, s.EnvironmentID)
	return nil
}

// Session returns the last session acquired for an environment.
func (p *Provider) Session(environmentID string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[environmentID]
}

// Released returns the environment IDs whose sessions were released.
func (p *Provider) Released() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.released...)
}
