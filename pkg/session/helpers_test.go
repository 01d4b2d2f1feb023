package session

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/config"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver/mock"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/flutter"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/metrics"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/portfwd"
)

const testApp = "com.example.app"

type fakeForwarder struct {
	mu          sync.Mutex
	established []portfwd.Binding
	attempts    []int
	released    int
	unavailable int // leading Establish calls that report the port taken
	releaseErr  error
}

func (f *fakeForwarder) Establish(_ context.Context, udid string, local, remote int) (portfwd.Binding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, local)
	if f.unavailable > 0 {
		f.unavailable--
		return portfwd.Binding{}, core.ErrPortUnavailable
	}
	b := portfwd.Binding{Local: local, Remote: remote, UDID: udid}
	f.established = append(f.established, b)
	return b, nil
}

func (f *fakeForwarder) Release(context.Context, portfwd.Binding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return f.releaseErr
}

func (f *fakeForwarder) Name() string { return "fake" }

func (f *fakeForwarder) Released() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

type countingLocator struct {
	inner  Waiter
	calls  int32
	mu     sync.Mutex
	probes []flutter.Probe
}

func (l *countingLocator) WaitUntilReady(ctx context.Context, p flutter.Probe) error {
	atomic.AddInt32(&l.calls, 1)
	l.mu.Lock()
	l.probes = append(l.probes, p)
	l.mu.Unlock()
	return l.inner.WaitUntilReady(ctx, p)
}

func (l *countingLocator) Calls() int {
	return int(atomic.LoadInt32(&l.calls))
}

type fixture struct {
	platform      *mock.Platform
	server        *mock.FlutterServer
	forwarder     *fakeForwarder
	locator       *countingLocator
	metrics       *metrics.Metrics
	driver        *Driver
	platformCalls int
	freePorts     int
}

// newFixture wires a Driver to a mock platform and a fake Flutter server
// that turns healthy on probe healthyAt.
func newFixture(t *testing.T, cfg mock.Config, healthyAt int32) *fixture {
	t.Helper()
	if cfg.AppIdentity == "" {
		cfg.AppIdentity = testApp
	}
	f := &fixture{
		platform:  mock.New(cfg),
		server:    mock.NewFlutterServer(healthyAt, cfg.AppIdentity),
		forwarder: &fakeForwarder{},
		metrics:   metrics.New(),
	}
	t.Cleanup(f.server.Close)
	f.locator = &countingLocator{inner: flutter.NewLocator(flutter.WithProbeHook(f.metrics.Probe))}

	f.driver = NewDriver(Options{
		Platforms: func(string) (driver.Platform, error) {
			f.platformCalls++
			return f.platform, nil
		},
		Forwarders: func(core.Target, string) (portfwd.Forwarder, error) {
			return f.forwarder, nil
		},
		Locator: f.locator,
		FreePort: func() (int, error) {
			f.freePorts++
			return f.server.Port(), nil
		},
		NewID:      func() string { return "base-session" },
		Metrics:    f.metrics,
		DevicePort: f.server.Port(),
		Readiness:  config.ReadinessConfig{MaxAttempts: 5, Interval: time.Millisecond},
	})
	return f
}

func androidCaps() caps.Capabilities {
	return caps.Capabilities{
		"platformName":   "Android",
		"automationName": "FlutterIntegration",
	}
}

func iosCaps(real bool) caps.Capabilities {
	return caps.Capabilities{
		"platformName":      "iOS",
		"automationName":    "FlutterIntegration",
		"appium:realDevice": real,
	}
}

// startSession creates a session on a fresh fixture that is healthy at once.
func startSession(t *testing.T, cfg mock.Config, c caps.Capabilities) (*fixture, *Session) {
	t.Helper()
	f := newFixture(t, cfg, 1)
	s, err := f.driver.CreateSession(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return f, s
}

func elementRef(id string) map[string]interface{} {
	return map[string]interface{}{driver.W3CElementKey: id}
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	return string(body)
}
