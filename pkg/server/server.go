// Package server is the WebDriver HTTP front end: it creates sessions and
// turns session-scoped requests into commands.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/caps"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/metrics"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/session"
)

// Version is reported by /status.
var Version = "dev"

// Server routes WebDriver requests to sessions.
type Server struct {
	driver   *session.Driver
	metrics  *metrics.Metrics
	sessions *Registry
	router   *mux.Router
	basePath string
}

// Option configures a Server.
type Option func(*Server)

// WithBasePath mounts the WebDriver routes under p, e.g. /wd/hub.
func WithBasePath(p string) Option {
	return func(s *Server) { s.basePath = strings.TrimSuffix(p, "/") }
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server around d.
func New(d *session.Driver, opts ...Option) *Server {
	s := &Server{driver: d, sessions: NewRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Sessions exposes the session registry.
func (s *Server) Sessions() *Registry {
	return s.sessions
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	root := mux.NewRouter()
	if s.metrics != nil {
		root.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r := root
	if s.basePath != "" {
		r = root.PathPrefix(s.basePath).Subrouter()
	}
	r.Use(s.logRequests)

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/session", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/session/{sessionId}", s.handleDeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/session/{sessionId}/flutter/methods", s.handleMethods).Methods(http.MethodGet)

	for _, route := range commandRoutes {
		r.HandleFunc("/session/{sessionId}"+route.Pattern, s.handleCommand(route.Name)).Methods(route.Method)
	}
	r.PathPrefix("/session/{sessionId}/").HandlerFunc(s.handlePassthrough)
	return root
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("%s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeValue(w, http.StatusOK, map[string]interface{}{
		"ready":   true,
		"message": "flutter integration driver is ready",
		"build":   map[string]interface{}{"version": Version},
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	out := make([]map[string]interface{}, 0, s.sessions.Len())
	for _, id := range s.sessions.IDs() {
		if sess, ok := s.sessions.Get(id); ok {
			out = append(out, map[string]interface{}{"id": id, "capabilities": sess.Capabilities()})
		}
	}
	writeValue(w, http.StatusOK, out)
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookup(w, r); !ok {
		return
	}
	writeValue(w, http.StatusOK, session.ExecuteMethods)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, err, true)
		return
	}
	c, err := caps.FromW3C(body)
	if err != nil {
		writeError(w, err, true)
		return
	}

	sess, err := s.driver.CreateSession(r.Context(), c)
	if err != nil {
		logger.Error("Session creation failed: %v", err)
		writeError(w, err, true)
		return
	}
	s.sessions.Add(sess)
	writeValue(w, http.StatusOK, map[string]interface{}{
		"sessionId":    sess.ID(),
		"capabilities": sess.Capabilities(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	sess, ok := s.sessions.Remove(id)
	if !ok {
		writeError(w, errNoSession(id), false)
		return
	}
	sess.Delete(r.Context())
	writeValue(w, http.StatusOK, nil)
}

// handleCommand dispatches a mapped route, unless the session relays raw
// requests to its platform driver.
func (s *Server) handleCommand(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.lookup(w, r)
		if !ok {
			return
		}
		if s.shouldForward(sess, r) {
			s.forward(w, r, sess)
			return
		}

		params, err := readBody(r)
		if err != nil {
			writeError(w, err, false)
			return
		}
		vars := mux.Vars(r)
		cmd := driver.Command{
			Name:   name,
			Method: r.Method,
			Path:   s.commandPath(r, vars["sessionId"]),
			Params: params,
			Vars:   vars,
		}
		result, err := sess.ExecuteCommand(r.Context(), cmd)
		if err != nil {
			logger.WithSession(sess.ID()).Debugf("%s failed: %v", name, err)
			writeError(w, err, false)
			return
		}
		writeValue(w, http.StatusOK, result)
	}
}

// handlePassthrough relays routes with no command mapping.
func (s *Server) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.forward(w, r, sess)
}

func (s *Server) shouldForward(sess *session.Session, r *http.Request) bool {
	return sess.ProxyActive() && !avoidProxy(r.Method, s.sessionRelative(r))
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err, false)
		return
	}
	if len(body) == 0 {
		body = nil
	}
	status, resp, err := sess.Forward(r.Context(), r.Method, s.sessionRelative(r), body)
	if err != nil {
		writeError(w, err, false)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(resp)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["sessionId"]
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, errNoSession(id), false)
		return nil, false
	}
	return sess, true
}

// sessionRelative strips the base path: /wd/hub/session/x/url -> /session/x/url.
func (s *Server) sessionRelative(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, s.basePath)
}

// commandPath is the part below /session/{id}.
func (s *Server) commandPath(r *http.Request, id string) string {
	return strings.TrimPrefix(s.sessionRelative(r), "/session/"+id)
}

// Shutdown deletes every live session.
func (s *Server) Shutdown(ctx context.Context) {
	for _, id := range s.sessions.IDs() {
		if sess, ok := s.sessions.Remove(id); ok {
			sess.Delete(ctx)
		}
	}
}

// ListenAndServe serves on addr until ctx is done, then drains requests and
// deletes the remaining sessions.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s%s", addr, s.basePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown(shutdownCtx)
	return err
}

func readBody(r *http.Request) (map[string]interface{}, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]interface{}{}, nil
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, errInvalidJSON(err)
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	return body, nil
}

func writeValue(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"value": value}); err != nil {
		logger.Error("Writing response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error, creating bool) {
	status, payload := toW3C(err, creating)
	writeValue(w, status, payload)
}
