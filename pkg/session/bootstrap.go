package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/flutter"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/portfwd"
)

// portRetries is how many fresh ports are tried when an auto-allocated
// local port turns out to be taken.
const portRetries = 3

// CreateSession validates c, starts the platform session, makes the
// Flutter server reachable and performs the Flutter handshake. Any failure
// after the platform session exists tears down what was set up.
func (d *Driver) CreateSession(ctx context.Context, c caps.Capabilities) (sess *Session, err error) {
	start := time.Now()
	c = caps.Normalize(c)
	if err := caps.Validate(c); err != nil {
		return nil, err
	}

	platformName := c.PlatformName()
	defer func() {
		d.opts.Metrics.Bootstrap(platformName, time.Since(start), err)
	}()

	if d.opts.Platforms == nil {
		return nil, fmt.Errorf("no platform drivers configured")
	}
	platform, err := d.opts.Platforms(platformName)
	if err != nil {
		return nil, core.ErrCapability.WithMessagef("unsupported platformName %q", platformName).WithCause(err)
	}

	s := &Session{
		id:       d.opts.NewID(),
		opts:     &d.opts,
		caps:     c,
		platform: platform,
		elements: NewElementCache(),
	}
	log := logger.WithSession(s.id)

	createCaps := c
	if port, ok := c.FlutterSystemPort(); ok && core.NormalizePlatform(platformName) == core.PlatformIOS {
		createCaps = c.WithFlutterServerPort(port)
	}

	log.Infof("Creating %s platform session", platformName)
	_, resolved, err := platform.CreateSession(ctx, createCaps)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		resolved = createCaps
	}
	s.resolvedCaps = resolved
	s.target = platform.Target()
	s.context = NewContextState(s.target)

	defer func() {
		if err != nil {
			log.Warnf("Session bootstrap failed, cleaning up: %v", err)
			s.cleanup(context.Background())
		}
	}()

	s.appID = resolveAppID(platform, c)

	fwd, err := d.opts.Forwarders(s.target, platform.UDID())
	if err != nil {
		return nil, err
	}
	s.forwarder = fwd

	if err := s.establish(ctx, d.opts); err != nil {
		return nil, err
	}
	log.Infof("Flutter server port %s via %s", s.binding, fwd.Name())

	s.host = c.Address()
	if s.host == "" {
		s.host = d.opts.Address
	}
	if err := s.waitReady(ctx, s.appID); err != nil {
		return nil, err
	}

	s.flutter = d.opts.NewProxy(s.host, s.port)
	if err := s.handshake(ctx, s.resolvedCaps); err != nil {
		return nil, err
	}

	d.opts.Metrics.SessionOpened()
	log.Infof("Session ready (target=%s, app=%s)", s.target, s.appID)
	return s, nil
}

// resolveAppID picks the application identity the readiness probe checks.
func resolveAppID(p driver.Platform, c caps.Capabilities) string {
	switch {
	case p.Target() == core.TargetAndroid:
		return p.AppIdentity()
	case p.Target().IsDesktop():
		return c.String(caps.KeyPackageName)
	default:
		return p.AppIdentity()
	}
}

// establish resolves the local port and sets up forwarding. Only ports this
// driver allocated are replaced on conflict; an explicit port is final.
func (s *Session) establish(ctx context.Context, opts Options) error {
	devicePort := opts.DevicePort
	explicit, hasExplicit := s.caps.FlutterSystemPort()
	if hasExplicit && s.target.IsIOS() {
		devicePort = explicit
	}

	local := 0
	switch {
	case hasExplicit:
		local = explicit
	case s.target.DirectNetwork():
		local = devicePort
	}

	attempts := 1
	if local == 0 {
		attempts = portRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		port := local
		if port == 0 {
			p, err := opts.FreePort()
			if err != nil {
				return core.ErrPortBinding.WithMessage("no free local port").WithCause(err)
			}
			port = p
		}
		b, err := s.forwarder.Establish(ctx, s.platform.UDID(), port, devicePort)
		if err == nil {
			s.binding = &b
			s.port = b.Local
			return nil
		}
		lastErr = err
		if !errors.Is(err, core.ErrPortUnavailable) {
			return err
		}
		logger.Debug("Local port %d unavailable, retrying", port)
	}
	return lastErr
}

func (s *Session) waitReady(ctx context.Context, appID string) error {
	attempts := s.opts.Readiness.MaxAttempts
	interval := s.opts.Readiness.Interval
	if timeout, ok := s.caps.FlutterServerLaunchTimeout(); ok {
		attempts = flutter.Attempts(timeout, interval)
	}
	return s.opts.Locator.WaitUntilReady(ctx, flutter.Probe{
		Host:        s.host,
		Port:        s.port,
		AppID:       appID,
		MaxAttempts: attempts,
		Interval:    interval,
	})
}

// handshake creates the remote session on the Flutter server.
func (s *Session) handshake(ctx context.Context, c caps.Capabilities) error {
	_, err := s.flutter.Command(ctx, "/session", http.MethodPost, map[string]interface{}{
		"capabilities": c,
	})
	return err
}

// cleanup releases the binding and deletes the platform session. Errors are
// logged only.
func (s *Session) cleanup(ctx context.Context) {
	log := logger.WithSession(s.id)
	if s.binding != nil && s.forwarder != nil {
		if err := s.forwarder.Release(ctx, *s.binding); err != nil {
			log.Warnf("Failed to release %s: %v", s.binding, err)
		}
		s.binding = nil
	}
	if err := s.platform.DeleteSession(ctx); err != nil {
		log.Warnf("Failed to delete platform session: %v", err)
	}
}

// Binding returns the held port mapping, if any.
func (s *Session) Binding() (portfwd.Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return portfwd.Binding{}, false
	}
	return *s.binding, true
}
