package server

import (
	"net/http"
	"regexp"
)

// commandRoute maps a session-scoped WebDriver endpoint to a command name.
// Patterns are relative to /session/{sessionId}.
type commandRoute struct {
	Method  string
	Pattern string
	Name    string
}

var commandRoutes = []commandRoute{
	{http.MethodGet, "", "getSession"},
	{http.MethodPost, "/element", "findElement"},
	{http.MethodPost, "/elements", "findElements"},
	{http.MethodPost, "/element/{elementId}/element", "findElementFromElement"},
	{http.MethodPost, "/element/{elementId}/elements", "findElementsFromElement"},
	{http.MethodPost, "/element/{elementId}/click", "click"},
	{http.MethodGet, "/element/{elementId}/text", "getText"},
	{http.MethodGet, "/element/{elementId}/attribute/{name}", "getAttribute"},
	{http.MethodGet, "/element/{elementId}/rect", "getElementRect"},
	{http.MethodGet, "/element/{elementId}/displayed", "elementDisplayed"},
	{http.MethodGet, "/element/{elementId}/enabled", "elementEnabled"},
	{http.MethodPost, "/element/{elementId}/value", "setValue"},
	{http.MethodPost, "/element/{elementId}/clear", "clear"},
	{http.MethodPost, "/execute/sync", "execute"},
	{http.MethodPost, "/execute", "execute"},
	{http.MethodPost, "/context", "setContext"},
	{http.MethodGet, "/context", "getContext"},
	{http.MethodGet, "/contexts", "getContexts"},
	{http.MethodGet, "/source", "getPageSource"},
	{http.MethodGet, "/screenshot", "getScreenshot"},
	{http.MethodGet, "/window/rect", "getWindowRect"},
	{http.MethodPost, "/back", "back"},
}

// RouteMatcher is one (method, path pattern) pair.
type RouteMatcher struct {
	Method  string
	Pattern *regexp.Regexp
}

// ProxyAvoidList are the routes this driver keeps handling itself while a
// webview context has raw proxying active.
var ProxyAvoidList = []RouteMatcher{
	{http.MethodGet, regexp.MustCompile(`^/session/[^/]+/appium`)},
	{http.MethodGet, regexp.MustCompile(`^/session/[^/]+/context`)},
	{http.MethodGet, regexp.MustCompile(`^/session/[^/]+/element/[^/]+/rect`)},
	{http.MethodGet, regexp.MustCompile(`^/session/[^/]+/log/types$`)},
	{http.MethodGet, regexp.MustCompile(`^/session/[^/]+/orientation`)},
	{http.MethodPost, regexp.MustCompile(`^/session/[^/]+/appium`)},
	{http.MethodPost, regexp.MustCompile(`^/session/[^/]+/context`)},
	{http.MethodPost, regexp.MustCompile(`^/session/[^/]+/log$`)},
	{http.MethodPost, regexp.MustCompile(`^/session/[^/]+/orientation`)},
	{http.MethodPost, regexp.MustCompile(`^/session/[^/]+/touch/multi/perform`)},
	{http.MethodPost, regexp.MustCompile(`^/session/[^/]+/touch/perform`)},
}

// avoidProxy reports whether method+path is on the ProxyAvoidList.
func avoidProxy(method, path string) bool {
	for _, m := range ProxyAvoidList {
		if m.Method == method && m.Pattern.MatchString(path) {
			return true
		}
	}
	return false
}
