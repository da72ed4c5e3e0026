package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

// element wraps a DOM node resolved in one session.
type element struct {
	node *cdp.Node
	desc string
}

func (e *element) Describe() string { return e.desc }

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is a core.BrowserSession over one attached browser. The last tab
// in the stack receives every command.
type Session struct {
	environmentID string
	allocCancel   context.CancelFunc

	mu   sync.Mutex
	tabs []tab
	mods input.Modifier
}

var (
	_ core.BrowserSession = (*Session)(nil)
	_ core.StateClearer   = (*Session)(nil)
)

func newSession(envID string, tabCtx context.Context, tabCancel, allocCancel context.CancelFunc) *Session {
	return &Session{
		environmentID: envID,
		allocCancel:   allocCancel,
		tabs:          []tab{{ctx: tabCtx, cancel: tabCancel}},
	}
}

// EnvironmentID returns the profile this session is attached to.
func (s *Session) EnvironmentID() string { return s.environmentID }

// bounded derives a context from a chromedp tab context that also ends when
// ctx does, so step deadlines apply to protocol calls.
func bounded(ctx, tabCtx context.Context) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(tabCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(tabCtx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) current() tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabs[len(s.tabs)-1]
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := bounded(ctx, s.current().ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) detach() {
	s.mu.Lock()
	tabs := s.tabs
	s.tabs = s.tabs[:1]
	s.mu.Unlock()

	for i := len(tabs) - 1; i >= 0; i-- {
		tabs[i].cancel()
	}
	s.allocCancel()
}

func nodeOf(el core.ElementHandle) (*cdp.Node, error) {
	e, ok := el.(*element)
	if !ok || e.node == nil {
		return nil, errors.New("element handle does not belong to a cdp session")
	}
	return e.node, nil
}

// FindElements resolves a selector to nodes without waiting for them.
func (s *Session) FindElements(ctx context.Context, kind core.SelectorKind, value string) ([]core.ElementHandle, error) {
	var (
		query string
		by    chromedp.QueryOption
	)
	switch kind {
	case core.SelectorCSS:
		query, by = value, chromedp.ByQueryAll
	case core.SelectorXPath:
		query, by = value, chromedp.BySearch
	case core.SelectorText:
		query, by = textXPath(value), chromedp.BySearch
	default:
		return nil, fmt.Errorf("unsupported selector kind %q", kind)
	}

	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(query, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}

	handles := make([]core.ElementHandle, len(nodes))
	for i, n := range nodes {
		handles[i] = &element{node: n, desc: fmt.Sprintf("%s:%s[%d]", kind, value, i)}
	}
	return handles, nil
}

// textXPath matches the innermost elements whose own text contains value.
func textXPath(value string) string {
	return fmt.Sprintf("//*[contains(normalize-space(text()), %s)]", xpathLiteral(value))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func (s *Session) ScrollIntoView(ctx context.Context, el core.ElementHandle) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, dom.ScrollIntoViewIfNeeded().WithNodeID(node.NodeID))
}

func buttonOf(b core.MouseButton) input.MouseButton {
	switch b {
	case core.ButtonRight:
		return input.Right
	case core.ButtonMiddle:
		return input.Middle
	default:
		return input.Left
	}
}

func (s *Session) Click(ctx context.Context, el core.ElementHandle, button core.MouseButton, clickCount int) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.MouseClickNode(node, chromedp.ButtonType(buttonOf(button)), chromedp.ClickCount(clickCount)))
}

func ids(node *cdp.Node) []cdp.NodeID { return []cdp.NodeID{node.NodeID} }

func (s *Session) SendKeys(ctx context.Context, el core.ElementHandle, text string) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.SendKeys(ids(node), text, chromedp.ByNodeID))
}

func (s *Session) Clear(ctx context.Context, el core.ElementHandle) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.Clear(ids(node), chromedp.ByNodeID))
}

func (s *Session) Focus(ctx context.Context, el core.ElementHandle) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.Focus(ids(node), chromedp.ByNodeID))
}

func (s *Session) Text(ctx context.Context, el core.ElementHandle) (string, error) {
	node, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	var text string
	err = s.run(ctx, chromedp.Text(ids(node), &text, chromedp.ByNodeID))
	return text, err
}

// center returns the midpoint of the node's content box.
func center(ctx context.Context, node *cdp.Node) (float64, float64, error) {
	box, err := dom.GetBoxModel().WithNodeID(node.NodeID).Do(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(box.Content) < 8 {
		return 0, 0, errors.New("element has no layout box")
	}
	var x, y float64
	for i := 0; i < 8; i += 2 {
		x += box.Content[i]
		y += box.Content[i+1]
	}
	return x / 4, y / 4, nil
}

func (s *Session) PointerMove(ctx context.Context, el core.ElementHandle) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, err := center(ctx, node)
		if err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

// PointerClick dispatches raw mouse events at the element's center instead
// of going through chromedp's node click.
func (s *Session) PointerClick(ctx context.Context, el core.ElementHandle, button core.MouseButton, clickCount int) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	btn := buttonOf(button)
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, err := center(ctx, node)
		if err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return err
		}
		for i := 1; i <= clickCount; i++ {
			if err := input.DispatchMouseEvent(input.MousePressed, x, y).
				WithButton(btn).WithClickCount(int64(i)).Do(ctx); err != nil {
				return err
			}
			if err := input.DispatchMouseEvent(input.MouseReleased, x, y).
				WithButton(btn).WithClickCount(int64(i)).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
}

// KeyDown presses key. Held modifiers apply to every later key event until
// released.
func (s *Session) KeyDown(ctx context.Context, key string) error {
	def := lookupKey(key)

	s.mu.Lock()
	mods := s.mods | def.modifier
	s.mu.Unlock()

	// Text is only produced when no command modifier is held
	typing := def.text != "" && mods&^input.ModifierShift == 0
	evType := input.KeyRawDown
	if typing {
		evType = input.KeyDown
	}
	ev := input.DispatchKeyEvent(evType).
		WithKey(def.key).
		WithCode(def.code).
		WithWindowsVirtualKeyCode(def.keyCode).
		WithNativeVirtualKeyCode(def.keyCode).
		WithModifiers(mods)
	if typing {
		ev = ev.WithText(def.text).WithUnmodifiedText(def.text)
	}
	if err := s.run(ctx, ev); err != nil {
		return err
	}

	s.mu.Lock()
	s.mods |= def.modifier
	s.mu.Unlock()
	return nil
}

func (s *Session) KeyUp(ctx context.Context, key string) error {
	def := lookupKey(key)

	s.mu.Lock()
	s.mods &^= def.modifier
	mods := s.mods
	s.mu.Unlock()

	return s.run(ctx, input.DispatchKeyEvent(input.KeyUp).
		WithKey(def.key).
		WithCode(def.code).
		WithWindowsVirtualKeyCode(def.keyCode).
		WithNativeVirtualKeyCode(def.keyCode).
		WithModifiers(mods))
}

func (s *Session) TypeText(ctx context.Context, text string) error {
	return s.run(ctx, input.InsertText(text))
}

// ExecuteScript calls fn with el as this (global object when el is nil).
// Arguments are inlined as JSON and promises are awaited.
func (s *Session) ExecuteScript(ctx context.Context, fn string, el core.ElementHandle, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode script arguments: %w", err)
	}

	var node *cdp.Node
	if el != nil {
		if node, err = nodeOf(el); err != nil {
			return nil, err
		}
	}

	var result *runtime.RemoteObject
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var exc *runtime.ExceptionDetails
		var err error
		if node == nil {
			expr := fmt.Sprintf("(%s).apply(globalThis, %s)", fn, argsJSON)
			result, exc, err = runtime.Evaluate(expr).
				WithReturnByValue(true).WithAwaitPromise(true).Do(ctx)
		} else {
			obj, rerr := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
			if rerr != nil {
				return rerr
			}
			wrapped := fmt.Sprintf("function() { return (%s).apply(this, %s); }", fn, argsJSON)
			result, exc, err = runtime.CallFunctionOn(wrapped).
				WithObjectID(obj.ObjectID).
				WithReturnByValue(true).WithAwaitPromise(true).Do(ctx)
		}
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return decodeRemote(result)
}

func decodeRemote(obj *runtime.RemoteObject) (any, error) {
	if obj == nil || len(obj.Value) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(obj.Value), &v); err != nil {
		return nil, fmt.Errorf("decode script result: %w", err)
	}
	return v, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, chromedp.Reload())
}

func (s *Session) GoBack(ctx context.Context) error {
	return s.run(ctx, chromedp.NavigateBack())
}

// scrollExpr builds the window scroll call for spec.
func scrollExpr(spec core.ScrollSpec) (string, error) {
	behavior := "auto"
	if spec.Smooth {
		behavior = "smooth"
	}

	if spec.Mode == core.ScrollByDistance {
		return fmt.Sprintf("window.scrollBy({top: %d, behavior: %q})", spec.Distance, behavior), nil
	}

	var top string
	switch spec.Position {
	case "top":
		top = "0"
	case "middle":
		top = "(document.documentElement.scrollHeight - window.innerHeight) / 2"
	case "bottom", "":
		top = "document.documentElement.scrollHeight"
	default:
		return "", fmt.Errorf("unknown scroll position %q", spec.Position)
	}
	return fmt.Sprintf("window.scrollTo({top: %s, behavior: %q})", top, behavior), nil
}

func (s *Session) Scroll(ctx context.Context, spec core.ScrollSpec) error {
	expr, err := scrollExpr(spec)
	if err != nil {
		return err
	}
	var ok bool
	return s.run(ctx, chromedp.Evaluate("(() => { "+expr+"; return true; })()", &ok))
}

// NewTab opens url in a new tab of the same browser and makes it current.
func (s *Session) NewTab(ctx context.Context, url string) error {
	if url == "" {
		url = "about:blank"
	}

	s.mu.Lock()
	root := s.tabs[0].ctx
	s.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(root)
	runCtx, stop := bounded(ctx, tabCtx)
	defer stop()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.tabs = append(s.tabs, tab{ctx: tabCtx, cancel: cancel})
	s.mu.Unlock()
	return nil
}

// CloseTab closes the current tab. The first tab stays open.
func (s *Session) CloseTab(ctx context.Context) error {
	s.mu.Lock()
	if len(s.tabs) <= 1 {
		s.mu.Unlock()
		return errors.New("cannot close the last tab")
	}
	t := s.tabs[len(s.tabs)-1]
	s.tabs = s.tabs[:len(s.tabs)-1]
	s.mu.Unlock()

	err := chromedp.Cancel(t.ctx)
	t.cancel()
	return err
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

const clearStorageScript = `(() => {
	try { window.localStorage.clear(); } catch (e) {}
	try { window.sessionStorage.clear(); } catch (e) {}
	return true;
})()`

// ClearState wipes cookies, cache and web storage of the current origin.
func (s *Session) ClearState(ctx context.Context) error {
	var ok bool
	return s.run(ctx,
		network.ClearBrowserCookies(),
		network.ClearBrowserCache(),
		chromedp.Evaluate(clearStorageScript, &ok),
	)
}

// String identifies the session in logs.
func (s *Session) String() string {
	s.mu.Lock()
	n := len(s.tabs)
	s.mu.Unlock()
	return s.environmentID + " (" + strconv.Itoa(n) + " tabs)"
}
