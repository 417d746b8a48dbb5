package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"cnc-operator-console/internal/model"
)

// Timeout caps handler time for the JSON API routes. The SSE stream is
// excluded from this and bounded by StreamTimeout instead.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
