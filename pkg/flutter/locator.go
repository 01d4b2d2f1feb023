// Package flutter locates the Flutter server embedded in the app under test.
package flutter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// StatusPath is the readiness endpoint of the Flutter server.
const StatusPath = "/status"

// Probe describes one readiness wait.
type Probe struct {
	Host        string
	Port        int
	AppID       string // package name or bundle id; empty skips the identity check
	MaxAttempts int
	Interval    time.Duration
}

func (p Probe) url() string {
	return "http://" + net.JoinHostPort(p.Host, strconv.Itoa(p.Port)) + StatusPath
}

// Locator polls the Flutter server until it answers.
type Locator struct {
	http    *http.Client
	onProbe func(ready bool)
}

// Option configures a Locator.
type Option func(*Locator)

// WithHTTPClient replaces the probe client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Locator) { l.http = c }
}

// WithProbeHook is called after every probe with its outcome.
func WithProbeHook(fn func(ready bool)) Option {
	return func(l *Locator) { l.onProbe = fn }
}

// NewLocator creates a Locator.
func NewLocator(opts ...Option) *Locator {
	l := &Locator{http: &http.Client{Timeout: 5 * time.Second}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitUntilReady issues exactly p.MaxAttempts probes at a constant interval,
// stopping at the first healthy answer. Exhausting them is core.ErrServerNotReady.
func (l *Locator) WaitUntilReady(ctx context.Context, p Probe) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	attempts := 0
	probe := func() error {
		attempts++
		err := l.probe(ctx, p)
		if l.onProbe != nil {
			l.onProbe(err == nil)
		}
		if err != nil {
			logger.Debug("Flutter server probe %d/%d on %s:%d: %v", attempts, p.MaxAttempts, p.Host, p.Port, err)
		}
		return err
	}

	policy := backoff.WithContext(newBounded(backoff.NewConstantBackOff(p.Interval), p.MaxAttempts), ctx)
	err := backoff.Retry(probe, policy)
	if err == nil {
		logger.Info("Flutter server is ready on %s:%d after %d probe(s)", p.Host, p.Port, attempts)
		return nil
	}

	details := map[string]interface{}{
		"host":     p.Host,
		"port":     p.Port,
		"appId":    p.AppID,
		"attempts": attempts,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.ErrServerNotReady.WithDetails(details).WithCause(ctxErr)
	}
	return core.ErrServerNotReady.
		WithMessagef("%s (no answer from %s:%d for app %q after %d attempts)",
			core.ErrServerNotReady.Message, p.Host, p.Port, p.AppID, attempts).
		WithDetails(details).
		WithCause(err)
}

type statusResponse struct {
	Value struct {
		AppInfo *struct {
			PackageName string `json:"packageName"`
			BundleID    string `json:"bundleId"`
		} `json:"appInfo"`
	} `json:"value"`
}

func (l *Locator) probe(ctx context.Context, p Probe) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(), nil)
	if err != nil {
		return err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if p.AppID == "" {
		return nil
	}

	var status statusResponse
	if json.Unmarshal(body, &status) != nil || status.Value.AppInfo == nil {
		return nil
	}
	info := status.Value.AppInfo
	if info.PackageName == p.AppID || info.BundleID == p.AppID {
		return nil
	}
	owner := info.PackageName
	if owner == "" {
		owner = info.BundleID
	}
	if owner == "" {
		return nil
	}
	return fmt.Errorf("server belongs to %q, waiting for %q", owner, p.AppID)
}

// Attempts converts a readiness window into a probe count, at least 1.
func Attempts(timeout, interval time.Duration) int {
	if interval <= 0 || timeout <= 0 {
		return 1
	}
	n := int((timeout + interval - 1) / interval)
	if n < 1 {
		return 1
	}
	return n
}

// bounded stops after max operations. backoff.WithMaxRetries counts retries,
// not calls, and treats 0 as unlimited.
type bounded struct {
	inner backoff.BackOff
	max   int
	calls int
}

func newBounded(inner backoff.BackOff, max int) *bounded {
	return &bounded{inner: inner, max: max}
}

func (b *bounded) NextBackOff() time.Duration {
	b.calls++
	if b.calls >= b.max {
		return backoff.Stop
	}
	return b.inner.NextBackOff()
}

func (b *bounded) Reset() {
	b.calls = 0
	b.inner.Reset()
}
