package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"cnc-operator-console/internal/guard"
	"cnc-operator-console/internal/model"
	"cnc-operator-console/internal/token"
)

type tokenDecoder interface {
	Decode(tokenString string) (token.Payload, error)
}

type contextKey string

const sessionContextKey contextKey = "session_view"

// AuthMiddleware validates bearer tokens and gates routes through the
// access guard, so every protected surface goes through the same decision
// function.
type AuthMiddleware struct {
	decoder tokenDecoder
	guard   *guard.Guard
}

func NewAuthMiddleware(decoder tokenDecoder, g *guard.Guard) *AuthMiddleware {
	return &AuthMiddleware{decoder: decoder, guard: g}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeDenied(w, http.StatusUnauthorized, "authentication required")
			return
		}

		payload, err := m.decoder.Decode(strings.TrimSpace(header[7:]))
		if err != nil {
			writeDenied(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		session := &model.Session{Account: model.Account{
			ID:          payload.Subject,
			Username:    payload.Username,
			Role:        payload.Role,
			Permissions: payload.Permissions,
			Active:      true,
		}}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require gates the route on an access-guard requirement. RequireAuth must
// run first; an absent session view denies with "authentication required".
func (m *AuthMiddleware) Require(requirement guard.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, _ := SessionFromContext(r.Context())

			decision := m.guard.Decide(session, requirement)
			if !decision.Allowed {
				status := http.StatusForbidden
				if session == nil {
					status = http.StatusUnauthorized
				}
				writeDenied(w, status, decision.Reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok
}

func writeDenied(w http.ResponseWriter, status int, reason string) {
	code := "FORBIDDEN"
	if status == http.StatusUnauthorized {
		code = "UNAUTHORIZED"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: code, Message: reason},
	})
}
