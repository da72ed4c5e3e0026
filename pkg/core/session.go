package core

import "context"

// SelectorKind tells the session how to interpret a selector value.
type SelectorKind string

// SelectorKind values
const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
	SelectorText  SelectorKind = "text"
)

// MouseButton is the button used for pointer interactions.
type MouseButton string

// MouseButton values
const (
	ButtonLeft   MouseButton = "left"
	ButtonMiddle MouseButton = "middle"
	ButtonRight  MouseButton = "right"
)

// ScrollMode selects between absolute and relative page scrolling.
type ScrollMode string

// ScrollMode values
const (
	ScrollToPosition ScrollMode = "position"
	ScrollByDistance ScrollMode = "distance"
)

// ScrollSpec describes one page scroll.
type ScrollSpec struct {
	Mode     ScrollMode
	Position string // top, middle, bottom (ScrollToPosition)
	Distance int    // signed pixel delta (ScrollByDistance)
	Smooth   bool
}

// ElementHandle is an opaque reference to a DOM element owned by the session
// that returned it. Handles are only valid for that session.
type ElementHandle interface {
	Describe() string
}

// BrowserSession is the automation capability the interpreter drives.
// Implementations: driver/cdp (Chrome DevTools), driver/mock.
// The interpreter owns retry and fallback logic; the session just performs
// single actions.
type BrowserSession interface {
	// FindElements returns every element matching the selector in document order
	FindElements(ctx context.Context, kind SelectorKind, value string) ([]ElementHandle, error)
	ScrollIntoView(ctx context.Context, el ElementHandle) error

	// Native interactions
	Click(ctx context.Context, el ElementHandle, button MouseButton, clickCount int) error
	SendKeys(ctx context.Context, el ElementHandle, text string) error
	Clear(ctx context.Context, el ElementHandle) error
	Focus(ctx context.Context, el ElementHandle) error
	Text(ctx context.Context, el ElementHandle) (string, error)

	// Pointer/action-chain interactions
	PointerMove(ctx context.Context, el ElementHandle) error
	PointerClick(ctx context.Context, el ElementHandle, button MouseButton, clickCount int) error

	// Keyboard events go to the focused element
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
	TypeText(ctx context.Context, text string) error

	// ExecuteScript calls a JavaScript function declaration with el bound to
	// `this` (nil for page scope) and returns its JSON-compatible result.
	ExecuteScript(ctx context.Context, fn string, el ElementHandle, args ...any) (any, error)

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	GoBack(ctx context.Context) error
	Scroll(ctx context.Context, spec ScrollSpec) error
	NewTab(ctx context.Context, url string) error
	CloseTab(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// StateClearer is implemented by sessions that can wipe cookies and storage.
type StateClearer interface {
	ClearState(ctx context.Context) error
}

// SessionProvider starts or attaches to the browser of an environment.
type SessionProvider interface {
	// Acquire returns a session for the environment; errors are surfaced verbatim
	Acquire(ctx context.Context, environmentID string) (BrowserSession, error)
	// Release closes the session and stops the environment's browser
	Release(ctx context.Context, session BrowserSession) error
}
