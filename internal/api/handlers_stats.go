package api

import (
	"context"
	"net/http"
	"time"
)

func (s *Server) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		jsonError(w, "connection stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backend_url": s.cfg.Backend.URL,
		"stats":       s.backend.Stats(),
	})
}

// handleViewerConfig serves the viewer client id, from local configuration
// or, when unset, from the backend.
func (s *Server) handleViewerConfig(w http.ResponseWriter, r *http.Request) {
	if id := s.cfg.Viewer.ClientID; id != "" {
		writeJSON(w, http.StatusOK, map[string]string{"client_id": id})
		return
	}
	if s.backend == nil {
		jsonError(w, "viewer client id not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	vc, err := s.backend.ViewerConfig(ctx)
	if err != nil {
		s.log.Warn("viewer config unavailable", "error", err)
		jsonError(w, "viewer config unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"client_id": vc.ClientID})
}
