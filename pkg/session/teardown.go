package session

import (
	"context"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// Delete releases the port binding, then deletes the platform session.
// Every step runs even if an earlier one failed; failures are logged, never
// returned. Calling Delete again does nothing.
func (s *Session) Delete(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		logger.WithSession(s.id).Debug("Session already deleted")
		return
	}
	s.deleted = true

	s.cleanup(ctx)
	s.elements.Clear()
	s.context.Reset()
	s.opts.Metrics.SessionClosed()
	logger.WithSession(s.id).Info("Session deleted")
}

// Deleted reports whether Delete has run.
func (s *Session) Deleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}
