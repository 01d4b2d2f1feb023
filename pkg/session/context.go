package session

import (
	"strings"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// Context names.
const (
	NativeContext = "NATIVE_APP"
	webviewMarker = "WEBVIEW"
)

// ContextKind is the class of the active UI context.
type ContextKind int

const (
	ContextNative ContextKind = iota
	ContextWebview
)

func (k ContextKind) String() string {
	switch k {
	case ContextWebview:
		return "webview"
	default:
		return "native"
	}
}

// Route is where a command is executed.
type Route int

const (
	RouteLocal Route = iota
	RoutePlatform
)

func (r Route) String() string {
	if r == RouteLocal {
		return "local"
	}
	return "platform"
}

// ContextState tracks the active context of one session.
type ContextState struct {
	target  core.Target
	current string
	webview bool
}

// NewContextState starts in the native context.
func NewContextState(target core.Target) *ContextState {
	return &ContextState{target: target, current: NativeContext}
}

// Current returns the active context name.
func (c *ContextState) Current() string {
	return c.current
}

// Kind classifies the active context.
func (c *ContextState) Kind() ContextKind {
	return classify(c.current)
}

// classify maps a context name to its kind. Names without the webview
// marker (e.g. CHROMIUM) count as native.
func classify(name string) ContextKind {
	if strings.Contains(name, webviewMarker) {
		return ContextWebview
	}
	return ContextNative
}

// Switch applies a set-context argument. An empty or non-string argument
// is logged and ignored; it never fails.
func (c *ContextState) Switch(arg interface{}) bool {
	name, ok := arg.(string)
	if !ok || name == "" {
		logger.Warn("Attempted to set context to invalid value: %v. Keeping current context: %s", arg, c.current)
		return false
	}
	c.current = name
	c.webview = classify(name) == ContextWebview
	return true
}

// Reset returns to the native context and clears the webview flag.
func (c *ContextState) Reset() {
	c.current = NativeContext
	c.webview = false
}

// Route decides where a command runs: Flutter-domain commands in the
// native context are handled here, everything else by the platform driver.
func (c *ContextState) Route(command string) Route {
	if c.current == NativeContext && IsFlutterDriverCommand(command) {
		return RouteLocal
	}
	return RoutePlatform
}

// CanProxy reports whether a webview context is active.
func (c *ContextState) CanProxy() bool {
	return c.webview
}

// ProxyActive reports whether raw requests should be relayed to the
// platform driver. The iOS driver bridges webviews itself, so it keeps
// command-level routing.
func (c *ContextState) ProxyActive() bool {
	return c.webview && !c.target.IsIOS()
}
