// Package driver defines the contract between sessions and the per-OS
// platform automation drivers (UiAutomator2, XCUITest, Windows, Mac2).
package driver

import (
	"context"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
)

// W3C WebDriver element identifier key (standard constant)
const W3CElementKey = "element-6066-11e4-a52e-4f735466cecf"

// Commander runs one WebDriver command against a remote. Paths may carry
// the :sessionId placeholder.
type Commander interface {
	Command(ctx context.Context, path, method string, body interface{}) (interface{}, error)
}

// Command is one inbound WebDriver command.
type Command struct {
	Name   string                 // command name, e.g. findElement, setContext
	Method string                 // HTTP method
	Path   string                 // path below /session/{id}, e.g. /element/abc/click
	Params map[string]interface{} // decoded JSON body
	Vars   map[string]string      // route variables, e.g. elementId
}

// Var returns a route variable or "".
func (c Command) Var(name string) string {
	return c.Vars[name]
}

// Param returns a body parameter.
func (c Command) Param(name string) interface{} {
	return c.Params[name]
}

// StringParam returns a string body parameter or "".
func (c Command) StringParam(name string) string {
	s, _ := c.Params[name].(string)
	return s
}

// Platform is a fully capable automation driver for one OS.
type Platform interface {
	// CreateSession starts the platform session and returns its id and the
	// capabilities the platform resolved.
	CreateSession(ctx context.Context, c caps.Capabilities) (string, caps.Capabilities, error)
	ExecuteCommand(ctx context.Context, cmd Command) (interface{}, error)
	// Execute runs a script, typically a "mobile:" extension.
	Execute(ctx context.Context, script string, args []interface{}) (interface{}, error)
	// Forward relays a raw request verbatim (webview proxy mode).
	Forward(ctx context.Context, method, path string, body []byte) (int, []byte, error)
	DeleteSession(ctx context.Context) error

	Target() core.Target
	// AppIdentity is the installed package (Android) or bundle id (iOS).
	AppIdentity() string
	UDID() string
	APILevel(ctx context.Context) (int, error)
	// OriginalCaps are the capabilities the session was created with.
	OriginalCaps() caps.Capabilities
	// Commander sends element commands to the platform's own endpoint.
	Commander() Commander
}

// ElementID extracts an element id from a W3C or legacy element reference.
func ElementID(value interface{}) string {
	m, ok := value.(map[string]interface{})
	if !ok {
		return ""
	}
	// W3C format
	if id, ok := m[W3CElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := m["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
