package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/config"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver/mock"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/metrics"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/portfwd"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/proxy"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/session"
)

const testApp = "com.example.app"

type harness struct {
	platform *mock.Platform
	flutter  *mock.FlutterServer
	server   *Server
	http     *httptest.Server
	base     string
}

func newHarness(t *testing.T, target core.Target, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		platform: mock.New(mock.Config{Target: target, AppIdentity: testApp}),
		flutter:  mock.NewFlutterServer(1, testApp),
	}
	t.Cleanup(h.flutter.Close)

	m := metrics.New()
	d := session.NewDriver(session.Options{
		Platforms: func(string) (driver.Platform, error) { return h.platform, nil },
		Forwarders: func(core.Target, string) (portfwd.Forwarder, error) {
			return portfwd.PassThrough{}, nil
		},
		FreePort:   func() (int, error) { return h.flutter.Port(), nil },
		DevicePort: h.flutter.Port(),
		Readiness:  config.ReadinessConfig{MaxAttempts: 3, Interval: time.Millisecond},
		Metrics:    m,
	})
	h.server = New(d, append([]Option{WithMetrics(m)}, opts...)...)
	h.http = httptest.NewServer(h.server.Handler())
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.http.URL+h.base+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (h *harness) createSession(t *testing.T, platformName string) string {
	t.Helper()
	status, out := h.do(t, http.MethodPost, "/session", map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": map[string]interface{}{
				"platformName":          platformName,
				"appium:automationName": "FlutterIntegration",
			},
		},
	})
	require.Equal(t, http.StatusOK, status, "create session: %v", out)
	value := out["value"].(map[string]interface{})
	id, _ := value["sessionId"].(string)
	require.NotEmpty(t, id)
	return id
}

func errorCode(out map[string]interface{}) string {
	v, _ := out["value"].(map[string]interface{})
	code, _ := v["error"].(string)
	return code
}

func TestStatus(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	status, out := h.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["value"].(map[string]interface{})["ready"])
}

func TestCreateSession_BadCapabilities(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)

	status, out := h.do(t, http.MethodPost, "/session", map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": map[string]interface{}{"platformName": "Android"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "session not created", errorCode(out))
	assert.Zero(t, h.platform.CallCount("CreateSession"))
	assert.Zero(t, h.server.Sessions().Len())
}

func TestCreateAndDeleteSession(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	id := h.createSession(t, "Android")

	status, out := h.do(t, http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, out["value"], 1)

	status, _ = h.do(t, http.MethodDelete, "/session/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, h.platform.CallCount("DeleteSession"))

	status, out = h.do(t, http.MethodDelete, "/session/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "invalid session id", errorCode(out))
	assert.Equal(t, 1, h.platform.CallCount("DeleteSession"))
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	status, out := h.do(t, http.MethodPost, "/session/nope/element", map[string]interface{}{"using": "key", "value": "k"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "invalid session id", errorCode(out))
}

func TestFindElement_GoesToFlutter(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	id := h.createSession(t, "Android")
	h.flutter.Respond(http.MethodPost, mock.SessionPath("/element"), map[string]interface{}{driver.W3CElementKey: "f1"})

	status, out := h.do(t, http.MethodPost, "/session/"+id+"/element", map[string]interface{}{"using": "-flutter text", "value": "Login"})
	require.Equal(t, http.StatusOK, status, "%v", out)
	assert.Equal(t, "f1", driver.ElementID(out["value"]))

	status, _ = h.do(t, http.MethodPost, "/session/"+id+"/element/f1/click", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, h.flutter.RequestsTo("/element/f1/click"), 1)
}

func TestInvalidSelector(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	id := h.createSession(t, "Android")

	status, out := h.do(t, http.MethodPost, "/session/"+id+"/element", map[string]interface{}{"using": "link text", "value": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid selector", errorCode(out))
}

func TestExecute_MissingParameter(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	id := h.createSession(t, "Android")

	status, out := h.do(t, http.MethodPost, "/session/"+id+"/execute/sync", map[string]interface{}{
		"script": "flutter: dragAndDrop",
		"args":   []interface{}{map[string]interface{}{"source": "a"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid argument", errorCode(out))
}

func TestPlatformCommandAndPassthrough(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	id := h.createSession(t, "Android")

	status, out := h.do(t, http.MethodGet, "/session/"+id+"/source", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "mock:getPageSource", out["value"])

	status, out = h.do(t, http.MethodGet, "/session/"+id+"/orientation", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "get /session/"+id+"/orientation", out["value"])
	assert.Equal(t, 1, h.platform.CallCount("Forward"))
}

func TestWebviewProxyMode(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	id := h.createSession(t, "Android")

	status, _ := h.do(t, http.MethodPost, "/session/"+id+"/context", map[string]interface{}{"name": "WEBVIEW_1"})
	require.Equal(t, http.StatusOK, status)

	// Mapped routes are relayed raw while the webview is active.
	status, _ = h.do(t, http.MethodPost, "/session/"+id+"/element", map[string]interface{}{"using": "css selector", "value": "a"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, h.platform.CallCount("Forward"))

	// Context routes stay on command dispatch.
	status, out := h.do(t, http.MethodGet, "/session/"+id+"/context", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "mock:getContext", out["value"])
	assert.Equal(t, 1, h.platform.CallCount("Forward"))
}

func TestWebviewOnIOSKeepsDispatch(t *testing.T) {
	h := newHarness(t, core.TargetIOSSimulator)
	id := h.createSession(t, "iOS")

	status, _ := h.do(t, http.MethodPost, "/session/"+id+"/context", map[string]interface{}{"name": "WEBVIEW_1"})
	require.Equal(t, http.StatusOK, status)

	_, out := h.do(t, http.MethodPost, "/session/"+id+"/element", map[string]interface{}{"using": "xpath", "value": "//a"})
	assert.Equal(t, "mock:findElement", out["value"])
	assert.Zero(t, h.platform.CallCount("Forward"))
}

func TestMethodsTable(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	id := h.createSession(t, "Android")

	status, out := h.do(t, http.MethodGet, "/session/"+id+"/flutter/methods", nil)
	assert.Equal(t, http.StatusOK, status)
	table := out["value"].(map[string]interface{})
	assert.Contains(t, table, "scrollTillVisible")
}

func TestBasePathAndMetrics(t *testing.T) {
	h := newHarness(t, core.TargetAndroid, WithBasePath("/wd/hub/"))
	h.base = "/wd/hub"
	id := h.createSession(t, "Android")

	status, _ := h.do(t, http.MethodGet, "/session/"+id+"/source", nil)
	assert.Equal(t, http.StatusOK, status)

	resp, err := http.Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "flutter_driver_sessions_active 1")
}

func TestShutdownDeletesSessions(t *testing.T) {
	h := newHarness(t, core.TargetAndroid)
	h.createSession(t, "Android")

	h.server.Shutdown(context.Background())
	assert.Zero(t, h.server.Sessions().Len())
	assert.Equal(t, 1, h.platform.CallCount("DeleteSession"))
}

func TestAvoidProxy(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/session/s1/context", true},
		{http.MethodPost, "/session/s1/context", true},
		{http.MethodGet, "/session/s1/contexts", true},
		{http.MethodGet, "/session/s1/element/e1/rect", true},
		{http.MethodGet, "/session/s1/log/types", true},
		{http.MethodPost, "/session/s1/log", true},
		{http.MethodPost, "/session/s1/touch/perform", true},
		{http.MethodPost, "/session/s1/appium/device/lock", true},
		{http.MethodGet, "/session/s1/log/types/extra", false},
		{http.MethodPost, "/session/s1/element", false},
		{http.MethodDelete, "/session/s1/context", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, avoidProxy(tt.method, tt.path), "%s %s", tt.method, tt.path)
	}
}

func TestToW3C(t *testing.T) {
	remote := core.ErrRemoteCommand.WithCause(&proxy.RemoteError{Status: 404, Code: "no such element", Message: "gone"})
	status, payload := toW3C(remote, false)
	assert.Equal(t, 404, status)
	assert.Equal(t, "no such element", payload.Error)

	status, payload = toW3C(core.ErrServerNotReady, true)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "session not created", payload.Error)

	status, payload = toW3C(core.ErrCommunication.WithCause(errors.New("refused")), false)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "unknown error", payload.Error)
}
