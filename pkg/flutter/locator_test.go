package flutter

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
)

// statusServer answers 503 until probe number healthyAt, then 200.
func statusServer(t *testing.T, healthyAt int32, pkg string) (*httptest.Server, *int32) {
	t.Helper()
	var probes int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != StatusPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := atomic.AddInt32(&probes, 1)
		if healthyAt <= 0 || n < healthyAt {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"value": map[string]interface{}{
				"message": "Flutter driver is ready to accept new connections",
				"appInfo": map[string]interface{}{"packageName": pkg},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server, &probes
}

func probeFor(t *testing.T, server *httptest.Server, appID string, max int) Probe {
	t.Helper()
	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return Probe{Host: host, Port: port, AppID: appID, MaxAttempts: max, Interval: time.Millisecond}
}

func TestWaitUntilReady_NeverHealthy(t *testing.T) {
	for _, max := range []int{1, 3, 7} {
		server, probes := statusServer(t, 0, "")
		var hooks int
		l := NewLocator(WithProbeHook(func(ready bool) {
			hooks++
			if ready {
				t.Error("no probe should report ready")
			}
		}))

		err := l.WaitUntilReady(context.Background(), probeFor(t, server, "com.example.app", max))
		if !errors.Is(err, core.ErrServerNotReady) {
			t.Fatalf("expected ErrServerNotReady, got %v", err)
		}
		if got := atomic.LoadInt32(probes); got != int32(max) {
			t.Errorf("max=%d: probes = %d", max, got)
		}
		if hooks != max {
			t.Errorf("max=%d: hook calls = %d", max, hooks)
		}
	}
}

func TestWaitUntilReady_HealthyOnK(t *testing.T) {
	const max = 5
	for k := int32(1); k <= max; k++ {
		server, probes := statusServer(t, k, "com.example.app")
		l := NewLocator()

		if err := l.WaitUntilReady(context.Background(), probeFor(t, server, "com.example.app", max)); err != nil {
			t.Fatalf("k=%d: unexpected error %v", k, err)
		}
		if got := atomic.LoadInt32(probes); got != k {
			t.Errorf("k=%d: probes = %d", k, got)
		}
	}
}

func TestWaitUntilReady_WrongApp(t *testing.T) {
	server, probes := statusServer(t, 1, "com.other.app")
	l := NewLocator()

	err := l.WaitUntilReady(context.Background(), probeFor(t, server, "com.example.app", 2))
	if !errors.Is(err, core.ErrServerNotReady) {
		t.Fatalf("expected ErrServerNotReady, got %v", err)
	}
	if atomic.LoadInt32(probes) != 2 {
		t.Errorf("probes = %d", atomic.LoadInt32(probes))
	}
}

func TestWaitUntilReady_NoAppIDCheck(t *testing.T) {
	server, _ := statusServer(t, 1, "com.other.app")
	if err := NewLocator().WaitUntilReady(context.Background(), probeFor(t, server, "", 1)); err != nil {
		t.Errorf("empty AppID should accept any server: %v", err)
	}
}

func TestWaitUntilReady_ErrorDetails(t *testing.T) {
	server, _ := statusServer(t, 0, "")
	err := NewLocator().WaitUntilReady(context.Background(), probeFor(t, server, "com.example.app", 2))

	var execErr *core.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %T", err)
	}
	if execErr.Details["attempts"] != 2 || execErr.Details["appId"] != "com.example.app" {
		t.Errorf("details = %v", execErr.Details)
	}
}

func TestWaitUntilReady_ContextCancelled(t *testing.T) {
	server, probes := statusServer(t, 0, "")
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLocator(WithProbeHook(func(bool) { cancel() }))

	p := probeFor(t, server, "", 50)
	p.Interval = 10 * time.Millisecond
	err := l.WaitUntilReady(ctx, p)
	if !errors.Is(err, core.ErrServerNotReady) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected ServerNotReady caused by cancellation, got %v", err)
	}
	if atomic.LoadInt32(probes) >= 50 {
		t.Error("cancellation should stop probing")
	}
}

func TestAttempts(t *testing.T) {
	tests := []struct {
		timeout, interval time.Duration
		want              int
	}{
		{10 * time.Second, 500 * time.Millisecond, 20},
		{1100 * time.Millisecond, 500 * time.Millisecond, 3},
		{0, time.Second, 1},
		{time.Second, 0, 1},
		{100 * time.Millisecond, time.Second, 1},
	}
	for _, tt := range tests {
		if got := Attempts(tt.timeout, tt.interval); got != tt.want {
			t.Errorf("Attempts(%v, %v) = %d, want %d", tt.timeout, tt.interval, got, tt.want)
		}
	}
}
