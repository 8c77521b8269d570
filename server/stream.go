package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wrx861/agentai/notify"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// handleStream serves a project's events as server-sent events until the
// client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "project")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "stream_error", "streaming not supported")
		return
	}
	flusher.Flush()

	events := make(chan notify.Event, 32)
	unsubscribe, err := s.streamer.Join(id, func(e notify.Event) {
		select {
		case events <- e:
		default: // Slow client: drop rather than block the publisher
		}
	})
	if err != nil {
		s.logger.Error("Failed to join event stream",
			slog.String("project_id", id),
			slog.String("error", err.Error()))
		sendSSEEvent(w, flusher, "error", map[string]string{"message": "failed to join stream"})
		return
	}
	defer unsubscribe()

	if err := sendSSEEvent(w, flusher, "connected", map[string]string{"project_id": id}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			if err := sendSSEEvent(w, flusher, event.Type, event); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
