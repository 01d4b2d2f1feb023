// Package session bootstraps Flutter sessions and routes their commands
// between the platform driver and the in-app Flutter server.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/config"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/flutter"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/metrics"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/portfwd"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/proxy"
)

// Waiter blocks until the Flutter server answers its readiness probe.
type Waiter interface {
	WaitUntilReady(ctx context.Context, p flutter.Probe) error
}

// PlatformFactory creates an unstarted platform driver for a canonical platform name.
type PlatformFactory func(platformName string) (driver.Platform, error)

// ForwarderFactory picks the forwarding strategy for a target.
type ForwarderFactory func(target core.Target, udid string) (portfwd.Forwarder, error)

// ProxyFactory builds the Flutter server client for a ready {host, port}.
type ProxyFactory func(host string, port int) driver.Commander

// Options wires a Driver to its collaborators. Zero fields get defaults
// from config.Default().
type Options struct {
	Platforms  PlatformFactory
	Forwarders ForwarderFactory
	Locator    Waiter
	NewProxy   ProxyFactory
	FreePort   func() (int, error)
	NewID      func() string
	Metrics    *metrics.Metrics

	DevicePort     int
	Address        string
	Readiness      config.ReadinessConfig
	CommandTimeout time.Duration
	Tunnel         string
}

// OptionsFromConfig fills the tunables of Options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DevicePort:     cfg.Flutter.DevicePort,
		Address:        cfg.Flutter.Address,
		Readiness:      cfg.Flutter.Readiness,
		CommandTimeout: cfg.Flutter.CommandTimeout,
		Tunnel:         cfg.IOS.Tunnel,
	}
}

// Driver creates sessions.
type Driver struct {
	opts Options
}

// NewDriver applies defaults to opts.
func NewDriver(opts Options) *Driver {
	def := config.Default()
	if opts.DevicePort == 0 {
		opts.DevicePort = def.Flutter.DevicePort
	}
	if opts.Address == "" {
		opts.Address = def.Flutter.Address
	}
	if opts.Readiness.MaxAttempts == 0 {
		opts.Readiness = def.Flutter.Readiness
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = def.Flutter.CommandTimeout
	}
	if opts.FreePort == nil {
		opts.FreePort = portfwd.FreePort
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Locator == nil {
		m := opts.Metrics
		opts.Locator = flutter.NewLocator(flutter.WithProbeHook(m.Probe))
	}
	if opts.NewProxy == nil {
		timeout := opts.CommandTimeout
		opts.NewProxy = func(host string, port int) driver.Commander {
			return proxy.New(host, port, proxy.WithTimeout(timeout))
		}
	}
	if opts.Forwarders == nil {
		tunnel := opts.Tunnel
		opts.Forwarders = func(target core.Target, udid string) (portfwd.Forwarder, error) {
			return portfwd.Select(target, udid, portfwd.Options{Tunnel: tunnel})
		}
	}
	return &Driver{opts: opts}
}

// Session is one automation run. Commands on a session are handled one at a time.
type Session struct {
	id   string
	opts *Options

	mu sync.Mutex

	caps         caps.Capabilities // validated request capabilities
	resolvedCaps caps.Capabilities // as returned by the platform driver
	platform     driver.Platform
	target       core.Target
	appID        string

	forwarder portfwd.Forwarder
	binding   *portfwd.Binding
	host      string
	port      int

	flutter  driver.Commander
	context  *ContextState
	elements *ElementCache
	deleted  bool
}

// ID returns the session id handed to the client.
func (s *Session) ID() string {
	return s.id
}

// Capabilities returns the capabilities the platform driver resolved.
func (s *Session) Capabilities() caps.Capabilities {
	return s.resolvedCaps
}

// Target returns the device class of the session.
func (s *Session) Target() core.Target {
	return s.target
}

// AppID returns the resolved application identity.
func (s *Session) AppID() string {
	return s.appID
}

// FlutterPort returns the local port the Flutter server is reached on.
func (s *Session) FlutterPort() int {
	return s.port
}

// Context returns the active context name.
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.Current()
}

// CanProxy reports whether a webview context is active.
func (s *Session) CanProxy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.CanProxy()
}

// ProxyActive reports whether raw requests go straight to the platform driver.
func (s *Session) ProxyActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.ProxyActive()
}

// Elements exposes the element handle cache.
func (s *Session) Elements() *ElementCache {
	return s.elements
}
