package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cnc-operator-console/internal/event"
	"cnc-operator-console/internal/lockout"
	"cnc-operator-console/internal/model"
	"cnc-operator-console/internal/service"
	"cnc-operator-console/internal/session"
	"cnc-operator-console/pkg/apierror"
)

// AuthHandler exposes the login lifecycle over HTTP. All session
// transitions go through the controller so timers and lockout stay
// consistent no matter which surface drives them.
type AuthHandler struct {
	auth       *service.AuthService
	controller *session.Controller
	governor   *lockout.Governor
	bus        event.Bus
}

func NewAuthHandler(auth *service.AuthService, controller *session.Controller, governor *lockout.Governor, bus event.Bus) *AuthHandler {
	return &AuthHandler{auth: auth, controller: controller, governor: governor, bus: bus}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var credentials model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, apierror.BadRequest("Invalid request body", err.Error()))
		return
	}

	credentials.Username = strings.TrimSpace(credentials.Username)

	if h.controller.IsAuthenticated() {
		writeError(w, apierror.Conflict("A session is already active; log out first"))
		return
	}

	// Lockout is checked before any credential work so that locked
	// attempts never reach the verifier, even with a correct password.
	if ok, remaining := h.governor.Allow(); !ok {
		retry := int(remaining.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, apierror.LockedOut(retry))
		return
	}

	response := h.controller.Login(r.Context(), credentials)
	if !response.Success {
		if locked, duration := h.governor.RecordFailure(); locked {
			h.auth.RecordLockout(r.Context(), credentials.Username, duration)
			// The 423 reaches only the attempting client; other dashboard
			// views learn about the trip through the event stream.
			if h.bus != nil {
				h.bus.Publish(event.Event{
					Type:     event.TypeAuthLockout,
					Username: credentials.Username,
					Notice:   fmt.Sprintf("login locked for %d seconds", int(duration.Seconds())),
				})
			}
			slog.Warn("lockout tripped",
				"username", credentials.Username,
				"duration", duration.String(),
			)
		}
		writeLoginResult(w, http.StatusUnauthorized, response)
		return
	}

	h.governor.RecordSuccess()
	writeLoginResult(w, http.StatusOK, response)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.controller.Logout(r.Context())
	writeSuccess(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.controller.IsAuthenticated() {
		writeError(w, model.ErrUnauthorized)
		return
	}

	if !h.controller.Refresh(r.Context()) {
		writeError(w, model.ErrRefreshFailed)
		return
	}

	state := h.controller.State()
	writeSuccess(w, http.StatusOK, map[string]any{
		"access_token": state.Session.AccessToken,
		"expires_at":   state.Session.ExpiresAt,
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, err := h.auth.CurrentAccount(r.Context())
	if err != nil {
		writeError(w, model.ErrUnauthorized)
		return
	}

	writeSuccess(w, http.StatusOK, account)
}

// Emergency grants supervised access via a physical override code. Both
// outcomes are audited inside the service; the handler only shapes the
// HTTP response.
func (h *AuthHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	var req model.EmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.BadRequest("Invalid request body", err.Error()))
		return
	}

	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, apierror.BadRequest("A reason is required for emergency access", ""))
		return
	}

	if !h.auth.EmergencyAccess(r.Context(), req.Code, req.Reason) {
		writeError(w, model.ErrForbidden)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{
		"message": "emergency access granted",
		"reason":  req.Reason,
	})
}
