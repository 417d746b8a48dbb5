package handler

import (
	"net/http"
	"time"

	"cnc-operator-console/internal/session"
)

// SessionHandler exposes the controller state for the dashboard shell:
// current phase, who is signed in, and the last operator notice.
type SessionHandler struct {
	controller *session.Controller
}

func NewSessionHandler(controller *session.Controller) *SessionHandler {
	return &SessionHandler{controller: controller}
}

type sessionView struct {
	Phase          string     `json:"phase"`
	Username       string     `json:"username,omitempty"`
	Role           string     `json:"role,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	Notice         string     `json:"notice,omitempty"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	state := h.controller.State()

	view := sessionView{
		Phase:  string(state.Phase),
		Notice: state.Notice,
	}
	if state.Session != nil {
		view.Username = state.Session.Account.Username
		view.Role = string(state.Session.Account.Role)
		expires := state.Session.ExpiresAt
		activity := state.Session.LastActivityAt
		view.ExpiresAt = &expires
		view.LastActivityAt = &activity
	}

	writeSuccess(w, http.StatusOK, view)
}

// Activity marks the operator as active, pushing the idle deadline out.
// It is a no-op outside an authenticated session.
func (h *SessionHandler) Activity(w http.ResponseWriter, r *http.Request) {
	h.controller.RecordActivity()
	w.WriteHeader(http.StatusNoContent)
}
