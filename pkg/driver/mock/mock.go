// Package mock provides a scripted platform driver and a fake Flutter server
// for testing without a real device.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
)

// Call is one recorded invocation.
type Call struct {
	Method string // Command, ExecuteCommand, Execute, Forward, CreateSession, DeleteSession
	Name   string // command name, script or path
	Path   string
	Body   interface{}
}

// Commander records commands and answers from a response table keyed by
// "METHOD path". Unknown keys answer nil.
type Commander struct {
	Label     string
	Responses map[string]interface{}
	Errors    map[string]error

	mu    sync.Mutex
	calls []Call
}

// NewCommander creates an empty Commander.
func NewCommander(label string) *Commander {
	return &Commander{
		Label:     label,
		Responses: make(map[string]interface{}),
		Errors:    make(map[string]error),
	}
}

// Command implements driver.Commander.
func (c *Commander) Command(_ context.Context, path, method string, body interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Method: method, Path: path, Body: body})
	key := method + " " + path
	if err, ok := c.Errors[key]; ok {
		return nil, err
	}
	return c.Responses[key], nil
}

// Calls returns a copy of the recorded commands.
func (c *Commander) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// LastCall returns the most recent command.
func (c *Commander) LastCall() (Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return Call{}, false
	}
	return c.calls[len(c.calls)-1], true
}

// Config configures mock platform behavior.
type Config struct {
	Target      core.Target
	UDID        string
	AppIdentity string
	APILevel    int

	// FailCreate makes CreateSession fail.
	FailCreate error
	// FailDelete makes DeleteSession fail (the call is still recorded).
	FailDelete error
	// CommandResults answers ExecuteCommand by command name.
	CommandResults map[string]interface{}
	// ScriptResults answers Execute by script name.
	ScriptResults map[string]interface{}
	// ScriptErrors fails Execute by script name.
	ScriptErrors map[string]error
}

// Platform is a scripted driver.Platform.
type Platform struct {
	Config Config

	commander *Commander

	mu           sync.Mutex
	calls        []Call
	originalCaps caps.Capabilities
	sessionID    string
}

var _ driver.Platform = (*Platform)(nil)

// New creates a mock platform.
func New(cfg Config) *Platform {
	if cfg.UDID == "" {
		cfg.UDID = "mock-device"
	}
	if cfg.Target == core.TargetUnknown {
		cfg.Target = core.TargetAndroid
	}
	return &Platform{Config: cfg, commander: NewCommander("platform")}
}

func (p *Platform) record(c Call) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (p *Platform) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallCount counts recorded calls of one method.
func (p *Platform) CallCount(method string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Executed returns the arguments of every Execute call for script.
func (p *Platform) Executed(script string) [][]interface{} {
	var out [][]interface{}
	for _, c := range p.Calls() {
		if c.Method == "Execute" && c.Name == script {
			args, _ := c.Body.([]interface{})
			out = append(out, args)
		}
	}
	return out
}

// CreateSession records c and returns it as the resolved capabilities.
func (p *Platform) CreateSession(_ context.Context, c caps.Capabilities) (string, caps.Capabilities, error) {
	p.record(Call{Method: "CreateSession", Body: c})
	if p.Config.FailCreate != nil {
		return "", nil, p.Config.FailCreate
	}
	p.mu.Lock()
	p.originalCaps = c.Clone()
	p.sessionID = "mock-session"
	p.mu.Unlock()
	return "mock-session", c.Clone(), nil
}

// ExecuteCommand records cmd and answers from CommandResults, else
// "mock:<name>".
func (p *Platform) ExecuteCommand(_ context.Context, cmd driver.Command) (interface{}, error) {
	p.record(Call{Method: "ExecuteCommand", Name: cmd.Name, Path: cmd.Path, Body: cmd.Params})
	if v, ok := p.Config.CommandResults[cmd.Name]; ok {
		return v, nil
	}
	return "mock:" + cmd.Name, nil
}

// Execute records script and answers from ScriptResults.
func (p *Platform) Execute(_ context.Context, script string, args []interface{}) (interface{}, error) {
	p.record(Call{Method: "Execute", Name: script, Body: args})
	if err, ok := p.Config.ScriptErrors[script]; ok {
		return nil, err
	}
	return p.Config.ScriptResults[script], nil
}

// Forward echoes the request.
func (p *Platform) Forward(_ context.Context, method, path string, body []byte) (int, []byte, error) {
	p.record(Call{Method: "Forward", Name: method, Path: path, Body: string(body)})
	return 200, []byte(fmt.Sprintf(`{"value":%q}`, strings.ToLower(method)+" "+path)), nil
}

// DeleteSession records the call.
func (p *Platform) DeleteSession(context.Context) error {
	p.record(Call{Method: "DeleteSession"})
	p.mu.Lock()
	p.sessionID = ""
	p.mu.Unlock()
	return p.Config.FailDelete
}

// Target returns the configured device class.
func (p *Platform) Target() core.Target { return p.Config.Target }

// AppIdentity returns the configured app id.
func (p *Platform) AppIdentity() string { return p.Config.AppIdentity }

// UDID returns the configured device id.
func (p *Platform) UDID() string { return p.Config.UDID }

// APILevel returns the configured API level.
func (p *Platform) APILevel(context.Context) (int, error) {
	if p.Config.APILevel == 0 {
		return 0, fmt.Errorf("api level unknown")
	}
	return p.Config.APILevel, nil
}

// OriginalCaps returns the capabilities passed to CreateSession.
func (p *Platform) OriginalCaps() caps.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.originalCaps
}

// Commander returns the platform's element commander.
func (p *Platform) Commander() driver.Commander { return p.commander }

// Elements returns the concrete commander for assertions.
func (p *Platform) Elements() *Commander { return p.commander }
