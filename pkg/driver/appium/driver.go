// Package appium implements driver.Platform on top of a W3C WebDriver
// automation server (UiAutomator2, XCUITest, Windows, Mac2).
package appium

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/config"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/device"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/proxy"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/simulator"
)

// AutomationNames is the engine requested from the platform server per platform.
var AutomationNames = map[string]string{
	core.PlatformAndroid: "UiAutomator2",
	core.PlatformIOS:     "XCUITest",
	core.PlatformWindows: "Windows",
	core.PlatformMac:     "Mac2",
}

// routes resolves commands that arrive without an HTTP path, e.g. from
// the session layer.
var routes = map[string]struct {
	method string
	path   string
}{
	"setContext":    {http.MethodPost, "/context"},
	"getContext":    {http.MethodGet, "/context"},
	"getContexts":   {http.MethodGet, "/contexts"},
	"getPageSource": {http.MethodGet, "/source"},
	"getScreenshot": {http.MethodGet, "/screenshot"},
	"getWindowRect": {http.MethodGet, "/window/rect"},
	"execute":       {http.MethodPost, "/execute/sync"},
	"back":          {http.MethodPost, "/back"},
}

// Driver is one session on a platform automation server.
type Driver struct {
	platformName string
	client       *proxy.Client

	isSimulator func(ctx context.Context, udid string) bool
	apiLevel    func(ctx context.Context, udid string) (int, error)

	mu       sync.Mutex
	original caps.Capabilities
	resolved caps.Capabilities
	target   core.Target
}

var _ driver.Platform = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithSimulatorCheck replaces the simctl lookup used to classify iOS devices.
func WithSimulatorCheck(fn func(ctx context.Context, udid string) bool) Option {
	return func(d *Driver) { d.isSimulator = fn }
}

// WithAPILevel replaces the adb lookup of the Android API level.
func WithAPILevel(fn func(ctx context.Context, udid string) (int, error)) Option {
	return func(d *Driver) { d.apiLevel = fn }
}

// New creates a driver for platformName talking to serverURL.
func New(platformName, serverURL string, clientOpts []proxy.Option, opts ...Option) (*Driver, error) {
	name := core.NormalizePlatform(platformName)
	if name == "" {
		return nil, fmt.Errorf("unsupported platform %q", platformName)
	}
	client, err := proxy.NewFromURL(serverURL, clientOpts...)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		platformName: name,
		client:       client,
		isSimulator:  simulator.IsSimulator,
		apiLevel:     adbAPILevel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Platforms returns a factory that creates a driver per platform from the
// configured server endpoints.
func Platforms(urls config.DriverURLs, clientOpts []proxy.Option, opts ...Option) func(string) (driver.Platform, error) {
	return func(platformName string) (driver.Platform, error) {
		name := core.NormalizePlatform(platformName)
		url := urls.ForPlatform(name)
		if url == "" {
			return nil, fmt.Errorf("no %s driver endpoint configured", platformName)
		}
		return New(name, url, clientOpts, opts...)
	}
}

func adbAPILevel(ctx context.Context, udid string) (int, error) {
	adb, err := device.New(udid)
	if err != nil {
		return 0, err
	}
	return adb.APILevel(ctx)
}

// CreateSession starts a session with the platform engine's automation name.
func (d *Driver) CreateSession(ctx context.Context, c caps.Capabilities) (string, caps.Capabilities, error) {
	request := c.Clone()
	if request == nil {
		request = caps.Capabilities{}
	}
	request[caps.KeyAutomationName] = AutomationNames[d.platformName]

	logger.Info("Creating %s session on %s", request.String(caps.KeyAutomationName), d.client.Target())
	value, err := d.client.Command(ctx, "/session", http.MethodPost, map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": request.W3C(),
			"firstMatch":  []interface{}{map[string]interface{}{}},
		},
	})
	if err != nil {
		return "", nil, err
	}

	id := d.client.SessionID()
	if id == "" {
		return "", nil, core.ErrRemoteCommand.WithMessage("platform driver returned no session id")
	}

	resolved := c.Clone()
	if resolved == nil {
		resolved = caps.Capabilities{}
	}
	if v, ok := value.(map[string]interface{}); ok {
		if rc, ok := v["capabilities"].(map[string]interface{}); ok {
			for k, val := range caps.Normalize(rc) {
				resolved[k] = val
			}
		}
	}

	target := d.classify(ctx, resolved)

	d.mu.Lock()
	d.original = c.Clone()
	d.resolved = resolved
	d.target = target
	d.mu.Unlock()

	logger.Info("Platform session %s created (target=%s)", id, target)
	return id, resolved, nil
}

// classify decides the device class. iOS devices without an explicit
// realDevice capability are looked up in the local simulator list.
func (d *Driver) classify(ctx context.Context, c caps.Capabilities) core.Target {
	if d.platformName != core.PlatformIOS {
		return core.TargetFor(d.platformName, false)
	}
	if isReal, ok := c.Bool(caps.KeyRealDevice); ok {
		return core.TargetFor(d.platformName, isReal)
	}
	udid := c.UDID()
	if udid == "" || d.isSimulator(ctx, udid) {
		return core.TargetIOSSimulator
	}
	return core.TargetIOSReal
}

// ExecuteCommand sends cmd to the platform server. Commands carry their
// own method and path when they come from the HTTP front end.
func (d *Driver) ExecuteCommand(ctx context.Context, cmd driver.Command) (interface{}, error) {
	method, path := cmd.Method, cmd.Path
	if path == "" {
		r, ok := routes[cmd.Name]
		if !ok {
			return nil, core.ErrUnknownMethod.WithMessagef("%s has no route on the %s driver", cmd.Name, d.platformName)
		}
		method, path = r.method, r.path
	}

	var body interface{}
	if method != http.MethodGet && method != http.MethodDelete {
		body = cmd.Params
		if body == nil {
			body = map[string]interface{}{}
		}
	}
	return d.client.Command(ctx, "/session/"+proxy.SessionPlaceholder+path, method, body)
}

// Execute runs a script through /execute/sync.
func (d *Driver) Execute(ctx context.Context, script string, args []interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	return d.client.Command(ctx, "/session/"+proxy.SessionPlaceholder+"/execute/sync", http.MethodPost,
		map[string]interface{}{"script": script, "args": args})
}

// Forward relays a raw request.
func (d *Driver) Forward(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	return d.client.Forward(ctx, method, path, body)
}

// DeleteSession ends the platform session. Without a session it does nothing.
func (d *Driver) DeleteSession(ctx context.Context) error {
	if d.client.SessionID() == "" {
		return nil
	}
	_, err := d.client.Command(ctx, "/session/"+proxy.SessionPlaceholder, http.MethodDelete, nil)
	return err
}

// Target returns the device class resolved at session creation.
func (d *Driver) Target() core.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == core.TargetUnknown {
		return core.TargetFor(d.platformName, false)
	}
	return d.target
}

// AppIdentity returns the package (Android) or bundle id (iOS, Mac).
func (d *Driver) AppIdentity() string {
	c := d.caps()
	if d.platformName == core.PlatformAndroid {
		if pkg := c.String(caps.KeyAppPackage); pkg != "" {
			return pkg
		}
		return c.String(caps.KeyPackageName)
	}
	return c.String(caps.KeyBundleID)
}

// UDID returns the device id the platform server settled on.
func (d *Driver) UDID() string {
	return d.caps().UDID()
}

// APILevel returns deviceApiLevel from the session, falling back to adb.
func (d *Driver) APILevel(ctx context.Context) (int, error) {
	if level, ok := d.caps().Int(caps.KeyDeviceAPILevel); ok && level > 0 {
		return level, nil
	}
	if d.platformName != core.PlatformAndroid {
		return 0, fmt.Errorf("api level is only defined on Android, not %s", strings.ToLower(d.platformName))
	}
	return d.apiLevel(ctx, d.UDID())
}

// OriginalCaps returns the capabilities CreateSession was called with.
func (d *Driver) OriginalCaps() caps.Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.original
}

// Commander returns the client for element commands.
func (d *Driver) Commander() driver.Commander {
	return d.client
}

func (d *Driver) caps() caps.Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolved
}
