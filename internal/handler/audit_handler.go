package handler

import (
	"net/http"
	"strconv"

	"cnc-operator-console/internal/audit"
	"cnc-operator-console/internal/model"
)

const defaultAuditLimit = 100

type AuditHandler struct {
	recorder audit.Recorder
}

func NewAuditHandler(recorder audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// List returns recent audit entries, newest first. Admin only; the route
// enforces the role requirement before the handler runs.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			writeError(w, model.ErrInvalidInput)
			return
		}
		limit = parsed
	}

	entries, err := h.recorder.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	if entries == nil {
		entries = []audit.Entry{}
	}

	writeSuccess(w, http.StatusOK, entries)
}
