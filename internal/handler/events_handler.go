package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cnc-operator-console/internal/event"
)

const heartbeatInterval = 15 * time.Second

// EventsHandler streams session lifecycle events over server-sent events
// so the dashboard can react to idle timeouts and refresh failures that
// happen between requests.
type EventsHandler struct {
	bus event.Bus
}

func NewEventsHandler(bus event.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.bus.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			// Comment lines keep intermediaries from closing the stream.
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case e, open := <-events:
			if !open {
				return
			}

			payload, err := json.Marshal(e)
			if err != nil {
				slog.Error("failed to encode event", "type", e.Type, "error", err.Error())
				continue
			}

			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
