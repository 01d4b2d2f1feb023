// Package proxy forwards WebDriver commands to one remote {host, port}.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// SessionPlaceholder in a command path is replaced with the remote session id.
const SessionPlaceholder = ":sessionId"

// DefaultTimeout applies when no timeout option is given.
const DefaultTimeout = 240 * time.Second

// Target is the immutable endpoint a Client talks to.
type Target struct {
	Scheme   string
	Host     string
	Port     int
	BasePath string
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// URL returns the absolute URL for a command path.
func (t Target) URL(path string) string {
	return fmt.Sprintf("%s://%s%s%s", t.Scheme, t.String(), t.BasePath, path)
}

// Client is a single-target command forwarder. Apart from the remote
// session id captured on POST /session it holds no state.
type Client struct {
	target Target
	http   *http.Client

	mu        sync.RWMutex
	sessionID string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBasePath prefixes every path, e.g. "/wd/hub".
func WithBasePath(p string) Option {
	return func(c *Client) { c.target.BasePath = strings.TrimSuffix(p, "/") }
}

// WithSessionID presets the remote session id.
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

// New creates a Client for host:port over http.
func New(host string, port int, opts ...Option) *Client {
	c := &Client{
		target: Target{Scheme: "http", Host: host, Port: port},
		http:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromURL creates a Client from an endpoint URL such as http://127.0.0.1:4723/wd/hub.
func NewFromURL(raw string, opts ...Option) (*Client, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", raw)
	}
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", raw, err)
		}
	}
	c := New(u.Hostname(), port, append([]Option{WithBasePath(u.Path)}, opts...)...)
	if u.Scheme != "" {
		c.target.Scheme = u.Scheme
	}
	return c, nil
}

// Target returns the endpoint this client is bound to.
func (c *Client) Target() Target {
	return c.target
}

// SessionID returns the remote session id, or "" before the handshake.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Command performs one round trip and returns the decoded "value".
// Transport failures are core.ErrCommunication; a structured error payload
// or a non-2xx status is core.ErrRemoteCommand wrapping *RemoteError.
func (c *Client) Command(ctx context.Context, path, method string, body interface{}) (interface{}, error) {
	resolved, err := c.resolvePath(path)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return nil, core.ErrInvalidParameter.WithMessagef("cannot encode body for %s %s", method, path).WithCause(err)
		}
	}

	status, respBody, err := c.do(ctx, method, resolved, payload)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			if status >= 300 {
				return nil, core.ErrRemoteCommand.WithMessagef("%s %s failed with status %d", method, path, status).
					WithCause(&RemoteError{Status: status, Code: http.StatusText(status), Message: string(respBody)})
			}
			return nil, core.ErrCommunication.WithMessagef("%s %s returned a non-JSON body", method, path).WithCause(err)
		}
	}

	if remote := remoteError(status, result); remote != nil {
		logger.Debug("Remote error from %s for %s %s: %s", c.target, method, resolved, remote.Message)
		return nil, core.ErrRemoteCommand.WithMessagef("%s %s failed", method, path).WithCause(remote)
	}

	value := result["value"]
	c.trackSession(method, path, result, value)
	return value, nil
}

// Forward sends a raw request and returns the remote status and body untouched.
// Any /session/<id>/ prefix is rewritten to the remote session id.
func (c *Client) Forward(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	resolved, err := c.resolvePath(path)
	if err != nil {
		return 0, nil, err
	}
	return c.do(ctx, method, resolved, body)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.target.URL(path), bodyReader)
	if err != nil {
		return 0, nil, core.ErrCommunication.WithMessagef("cannot build request %s %s", method, path).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	logger.Debug("Proxying [%s %s] to %s", method, path, c.target)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, core.ErrCommunication.
			WithMessagef("could not proxy %s %s to %s", method, path, c.target).
			WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, core.ErrCommunication.WithMessagef("reading response of %s %s", method, path).WithCause(err)
	}
	logger.Debug("Got response with status %d in %v", resp.StatusCode, time.Since(start))
	return resp.StatusCode, respBody, nil
}

// resolvePath substitutes the session placeholder and rewrites foreign
// session ids in /session/<id>/... paths.
func (c *Client) resolvePath(path string) (string, error) {
	sid := c.SessionID()

	if strings.Contains(path, SessionPlaceholder) {
		if sid == "" {
			return "", core.ErrNoFlutterSession.WithMessagef("no remote session on %s for %s", c.target, path)
		}
		return strings.ReplaceAll(path, SessionPlaceholder, url.PathEscape(sid)), nil
	}

	if sid == "" || !strings.HasPrefix(path, "/session/") {
		return path, nil
	}
	rest := strings.TrimPrefix(path, "/session/")
	if rest == "" {
		return path, nil
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return "/session/" + url.PathEscape(sid) + rest[i:], nil
	}
	return "/session/" + url.PathEscape(sid), nil
}

func (c *Client) trackSession(method, path string, result map[string]interface{}, value interface{}) {
	switch {
	case method == http.MethodPost && path == "/session":
		id, _ := result["sessionId"].(string)
		if v, ok := value.(map[string]interface{}); ok && id == "" {
			id, _ = v["sessionId"].(string)
		}
		if id == "" {
			return
		}
		c.mu.Lock()
		c.sessionID = id
		c.mu.Unlock()
		logger.Info("Remote session %s established on %s", id, c.target)
	case method == http.MethodDelete && isSessionRoot(path):
		c.mu.Lock()
		c.sessionID = ""
		c.mu.Unlock()
	}
}

func isSessionRoot(path string) bool {
	rest := strings.TrimPrefix(path, "/session/")
	return rest != path && rest != "" && !strings.Contains(rest, "/")
}
