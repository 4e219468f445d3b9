package httpapi

import (
	"context"
	"net/http"
	"time"
)

// Health reports liveness plus the outbox dead-letter count (no metrics
// endpoint is named in spec.md's External Interfaces; this is the
// simplest faithful operator signal available without one).
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.outboxDeadLetterCount != nil {
		body["outbox_dead_letter_count"] = s.outboxDeadLetterCount()
	}
	writeData(w, r, http.StatusOK, body)
}

// Ready checks the database is reachable, per the teacher's readiness
// pattern (a cheap ping against the pool).
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Repos.Pool.Ping(ctx); err != nil {
		writeData(w, r, http.StatusServiceUnavailable, map[string]any{"status": "not ready"})
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"status": "ready"})
}

// Live is an unconditional liveness probe: the process is up and serving.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]any{"status": "live"})
}
