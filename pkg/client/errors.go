package client

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/gameroom/pkg/protocol"
)

var (
	// ErrNoAction rejects a suggestion edit that parses to no action. The
	// suggestion stays in Editing.
	ErrNoAction = errors.New("no action recognised")

	ErrUnknownSuggestion = errors.New("unknown suggestion")
	ErrNotEditing        = errors.New("suggestion is not being edited")
	ErrNotConnected      = errors.New("not connected")
	ErrSessionClosed     = errors.New("session closed")
)

// APIError represents a non-2xx response from the room gateway.
type APIError struct {
	StatusCode int
	Code       protocol.ErrorCode
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == status
	}
	return false
}

// IsCode returns true if err (or any wrapped error) is an APIError carrying code.
func IsCode(err error, code protocol.ErrorCode) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// codeOf extracts the rejection code from a gateway error or an error frame.
func codeOf(err error) protocol.ErrorCode {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var frame protocol.Error
	if errors.As(err, &frame) {
		return frame.Code
	}
	return ""
}
