package api

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// healthTimeout bounds the agent health check behind /health.
const healthTimeout = 2 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Error         string `json:"error,omitempty"`
}

// handleHealth returns 200 while the agent is listening, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	status := http.StatusOK
	if err := s.agent.HealthCheck(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// handleStatus returns the agent snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Status())
}

// handleListActuations returns recent journal entries.
func (s *Server) handleListActuations(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "actuation journal is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing actuations", "error", err)
		writeInternalError(w, "failed to read actuation journal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"actuations": entries,
		"count":      len(entries),
	})
}
