package server

import (
	"errors"
	"net/http"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/core"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/proxy"
)

// w3cError is the WebDriver error payload.
type w3cError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
}

// toW3C maps an error to an HTTP status and WebDriver error code. Remote
// errors are relayed as the remote reported them.
func toW3C(err error, creating bool) (int, w3cError) {
	var remote *proxy.RemoteError
	if errors.As(err, &remote) {
		status := remote.Status
		if status < 400 {
			status = http.StatusInternalServerError
		}
		return status, w3cError{Error: remote.Code, Message: err.Error(), Stacktrace: remote.Stacktrace}
	}

	if creating {
		status := http.StatusInternalServerError
		switch core.CategoryOf(err) {
		case core.ErrCategoryCapability, core.ErrCategoryInvalidArgument:
			status = http.StatusBadRequest
		}
		return status, w3cError{Error: "session not created", Message: err.Error()}
	}

	var execErr *core.ExecutionError
	code := ""
	if errors.As(err, &execErr) {
		code = execErr.Code
	}

	switch core.CategoryOf(err) {
	case core.ErrCategoryNoSuchSession:
		return http.StatusNotFound, w3cError{Error: "invalid session id", Message: err.Error()}
	case core.ErrCategoryInvalidArgument:
		if code == core.ErrInvalidSelector.Code {
			return http.StatusBadRequest, w3cError{Error: "invalid selector", Message: err.Error()}
		}
		return http.StatusBadRequest, w3cError{Error: "invalid argument", Message: err.Error()}
	case core.ErrCategoryCapability:
		return http.StatusBadRequest, w3cError{Error: "invalid argument", Message: err.Error()}
	}
	return http.StatusInternalServerError, w3cError{Error: "unknown error", Message: err.Error()}
}

func errNoSession(id string) error {
	return core.ErrNoSuchSession.WithMessagef("session %q does not exist", id)
}

func errInvalidJSON(err error) error {
	return core.ErrInvalidParameter.WithMessage("request body is not a JSON object").WithCause(err)
}
