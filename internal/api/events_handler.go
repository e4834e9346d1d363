package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// StreamEvents handles GET /api/jobs/{id}/events as Server-Sent Events.
// The first event carries the current status; the stream ends after the
// terminal state change or when the client goes away.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	sub, status, err := h.orchestrator.Subscribe(r.Context(), jobID)
	if err != nil {
		h.respondServiceError(w, r, "subscribe to job", err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// the server write timeout would cut long streams
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "", "status", toStatus(status)); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn("sse flush unsupported", slog.String("error", err.Error()))
		return
	}

	keepAlive := time.NewTicker(h.opts.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, fmt.Sprint(event.Seq), string(event.Type), toEvent(event)); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, id, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
