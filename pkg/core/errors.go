// Package core holds the error taxonomy and target model shared by every
// other package.
package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies an error by the phase and collaborator that produced it.
type ErrorCategory int

const (
	ErrCategoryNone            ErrorCategory = iota // No error
	ErrCategoryCapability                           // Malformed or missing capability
	ErrCategoryServerNotReady                       // Flutter server never answered the readiness probe
	ErrCategoryCommunication                        // Transport failure talking to a remote
	ErrCategoryRemoteCommand                        // Remote reported a command-level failure
	ErrCategoryPortBinding                          // Port forward establish/release failed
	ErrCategoryInvalidArgument                      // Caller supplied bad command arguments
	ErrCategoryNoSuchSession                        // Unknown or deleted session
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryCapability:
		return "capability"
	case ErrCategoryServerNotReady:
		return "server_not_ready"
	case ErrCategoryCommunication:
		return "communication"
	case ErrCategoryRemoteCommand:
		return "remote_command"
	case ErrCategoryPortBinding:
		return "port_binding"
	case ErrCategoryInvalidArgument:
		return "invalid_argument"
	case ErrCategoryNoSuchSession:
		return "no_such_session"
	default:
		return "unknown"
	}
}

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: server_not_ready, missing_parameter, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches predefined errors by category and code, so a copy produced by
// WithCause or WithMessage still satisfies errors.Is against its template.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Bootstrap errors
	ErrCapability = &ExecutionError{
		Category: ErrCategoryCapability,
		Code:     "invalid_capability",
		Message:  "invalid capabilities",
	}
	ErrServerNotReady = &ExecutionError{
		Category: ErrCategoryServerNotReady,
		Code:     "server_not_ready",
		Message:  "flutter server is not started. Please make sure the application under test is configured properly with the flutter integration server",
	}

	// Transport errors
	ErrCommunication = &ExecutionError{
		Category: ErrCategoryCommunication,
		Code:     "communication_failed",
		Message:  "could not communicate with remote server",
	}
	ErrRemoteCommand = &ExecutionError{
		Category: ErrCategoryRemoteCommand,
		Code:     "remote_command_failed",
		Message:  "remote command failed",
	}

	// Port forwarding errors
	ErrPortBinding = &ExecutionError{
		Category: ErrCategoryPortBinding,
		Code:     "port_binding_failed",
		Message:  "port forwarding failed",
	}
	ErrPortUnavailable = &ExecutionError{
		Category: ErrCategoryPortBinding,
		Code:     "port_unavailable",
		Message:  "local port is already in use",
	}

	// Argument errors
	ErrInvalidContext = &ExecutionError{
		Category: ErrCategoryInvalidArgument,
		Code:     "invalid_context",
		Message:  "invalid context name",
	}
	ErrMissingParameter = &ExecutionError{
		Category: ErrCategoryInvalidArgument,
		Code:     "missing_parameter",
		Message:  "missing required parameter",
	}
	ErrInvalidParameter = &ExecutionError{
		Category: ErrCategoryInvalidArgument,
		Code:     "invalid_parameter",
		Message:  "invalid parameter",
	}
	ErrUnknownMethod = &ExecutionError{
		Category: ErrCategoryInvalidArgument,
		Code:     "unknown_method",
		Message:  "unknown method",
	}
	ErrInvalidSelector = &ExecutionError{
		Category: ErrCategoryInvalidArgument,
		Code:     "invalid_selector",
		Message:  "locator strategy is not supported",
	}

	// Session errors
	ErrNoSuchSession = &ExecutionError{
		Category: ErrCategoryNoSuchSession,
		Code:     "invalid_session_id",
		Message:  "no such session",
	}
	ErrNoFlutterSession = &ExecutionError{
		Category: ErrCategoryNoSuchSession,
		Code:     "no_flutter_session",
		Message:  "flutter server session is not established",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the first ExecutionError in the chain.
func CategoryOf(err error) ErrorCategory {
	var e *ExecutionError
	if errors.As(err, &e) {
		return e.Category
	}
	return ErrCategoryNone
}

// IsCategory reports whether any ExecutionError in the chain has the category.
func IsCategory(err error, category ErrorCategory) bool {
	for err != nil {
		var e *ExecutionError
		if !errors.As(err, &e) {
			return false
		}
		if e.Category == category {
			return true
		}
		err = e.Cause
	}
	return false
}
