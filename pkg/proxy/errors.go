package proxy

import (
	"fmt"
	"net/http"
)

// RemoteError is a command failure reported by the remote, kept verbatim.
type RemoteError struct {
	Status     int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// remoteError extracts a W3C or legacy JSONWP error from a decoded response.
func remoteError(status int, result map[string]interface{}) *RemoteError {
	if v, ok := result["value"].(map[string]interface{}); ok {
		if code, ok := v["error"].(string); ok && code != "" {
			msg, _ := v["message"].(string)
			trace, _ := v["stacktrace"].(string)
			if status < 300 {
				status = http.StatusInternalServerError
			}
			return &RemoteError{Status: status, Code: code, Message: msg, Stacktrace: trace}
		}
	}

	// JSONWP: {"status": 7, "value": {"message": "..."}}
	if s, ok := result["status"].(float64); ok && s != 0 {
		msg := ""
		if v, ok := result["value"].(map[string]interface{}); ok {
			msg, _ = v["message"].(string)
		} else if v, ok := result["value"].(string); ok {
			msg = v
		}
		if status < 300 {
			status = http.StatusInternalServerError
		}
		return &RemoteError{Status: status, Code: fmt.Sprintf("jsonwp status %d", int(s)), Message: msg}
	}

	if status >= 300 {
		msg := ""
		if v, ok := result["value"].(string); ok {
			msg = v
		}
		return &RemoteError{Status: status, Code: http.StatusText(status), Message: msg}
	}
	return nil
}
