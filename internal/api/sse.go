package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/memwall/internal/events"
)

const sseHeartbeat = 15 * time.Second

// handleRunStream mirrors run frames as server-sent events. With a run ID
// in the path only that run is followed, and the stream ends with the run.
// Observers joining late miss frames sent before they subscribed.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if s.bus == nil {
		s.respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	ctx := r.Context()
	runID := chi.URLParam(r, "runID")
	var ch <-chan events.Envelope
	if runID != "" {
		ch = s.bus.Subscribe(runID)
	} else {
		ch = s.bus.Subscribe()
	}
	defer s.bus.Unsubscribe(ch)

	s.logger.Debug("SSE client connected", "remote_addr", r.RemoteAddr, "run_id", runID)
	s.sendSSEEvent(w, flusher, "connected", map[string]string{"status": "connected", "run_id": runID})

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			s.sendSSEEvent(w, flusher, env.Frame.Type, env)
			if runID != "" && events.IsTerminalType(env.Frame.Type) {
				return
			}
		case <-heartbeat.C:
			if runID != "" && !s.isActive(runID) {
				s.sendSSEEvent(w, flusher, "ended", map[string]string{"run_id": runID})
				return
			}
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// sendSSEEvent writes an event to the SSE stream.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

func (s *Server) isActive(runID string) bool {
	for _, run := range s.launcher.Active() {
		if run.ID == runID {
			return true
		}
	}
	return false
}
