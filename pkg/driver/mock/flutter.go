package mock

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// FlutterSessionID is the remote session id the fake server hands out.
const FlutterSessionID = "flutter-session"

// Request is one request received by a FlutterServer.
type Request struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// FlutterServer is an in-process fake of the in-app Flutter server.
type FlutterServer struct {
	*httptest.Server

	// AppID is reported in /status appInfo.
	AppID string

	healthyAt int32 // first probe answered 200; 0 never becomes healthy

	mu        sync.Mutex
	responses map[string]interface{}
	requests  []Request
	probes    int32
	sessions  int32
}

// NewFlutterServer starts a fake server healthy from probe healthyAt.
func NewFlutterServer(healthyAt int32, appID string) *FlutterServer {
	f := &FlutterServer{
		healthyAt: healthyAt,
		AppID:     appID,
		responses: make(map[string]interface{}),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// SetHealthyAt changes the first healthy probe number.
func (f *FlutterServer) SetHealthyAt(n int32) {
	atomic.StoreInt32(&f.healthyAt, n)
}

// Port returns the listening port.
func (f *FlutterServer) Port() int {
	_, port, _ := net.SplitHostPort(f.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Respond sets the value returned for "METHOD path", where path uses the
// real remote session id.
func (f *FlutterServer) Respond(method, path string, value interface{}) {
	f.mu.Lock()
	f.responses[method+" "+path] = value
	f.mu.Unlock()
}

// SessionPath is /session/<remote id><suffix>.
func SessionPath(suffix string) string {
	return "/session/" + FlutterSessionID + suffix
}

// Probes returns the number of /status requests seen.
func (f *FlutterServer) Probes() int {
	return int(atomic.LoadInt32(&f.probes))
}

// Sessions returns the number of handshakes seen.
func (f *FlutterServer) Sessions() int {
	return int(atomic.LoadInt32(&f.sessions))
}

// Requests returns every non-probe request.
func (f *FlutterServer) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// RequestsTo returns the requests whose path ends with suffix.
func (f *FlutterServer) RequestsTo(suffix string) []Request {
	var out []Request
	for _, r := range f.Requests() {
		if strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}

func (f *FlutterServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/status" {
		n := atomic.AddInt32(&f.probes, 1)
		healthyAt := atomic.LoadInt32(&f.healthyAt)
		if healthyAt <= 0 || n < healthyAt {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeValue(w, http.StatusOK, map[string]interface{}{
			"message": "Flutter driver is ready to accept new connections",
			"appInfo": map[string]interface{}{"packageName": f.AppID, "bundleId": f.AppID},
		})
		return
	}

	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
	value, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if r.Method == http.MethodPost && r.URL.Path == "/session" {
		atomic.AddInt32(&f.sessions, 1)
		writeValue(w, http.StatusOK, map[string]interface{}{
			"sessionId":    FlutterSessionID,
			"capabilities": body["capabilities"],
		})
		return
	}

	if !ok && !strings.HasPrefix(r.URL.Path, "/session/"+FlutterSessionID) {
		writeValue(w, http.StatusNotFound, map[string]interface{}{
			"error":   "invalid session id",
			"message": fmt.Sprintf("unknown path %s", r.URL.Path),
		})
		return
	}
	writeValue(w, http.StatusOK, value)
}

func writeValue(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": value})
}
