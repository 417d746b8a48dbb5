// Package apierror defines the error shape the HTTP layer returns to
// clients. Handlers construct these directly for conditions that do not
// map onto a model sentinel, such as lockout or duplicate login.
package apierror

import (
	"fmt"
	"net/http"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

func BadRequest(message string, details string) *APIError {
	return New("BAD_REQUEST", message, details, http.StatusBadRequest)
}

func Unauthorized(message string) *APIError {
	return New("UNAUTHORIZED", message, "", http.StatusUnauthorized)
}

func Conflict(message string) *APIError {
	return New("CONFLICT", message, "", http.StatusConflict)
}

// LockedOut carries the remaining lock window so clients can display a
// countdown instead of retrying blindly.
func LockedOut(remaining int) *APIError {
	return New(
		"LOCKED_OUT",
		"Account temporarily locked due to repeated failed attempts",
		fmt.Sprintf("retry in %d seconds", remaining),
		http.StatusLocked,
	)
}
