package localapi

import (
	"net/http"
	"strings"
)

func (s *Server) registerRunRoutes() {
	s.mux.HandleFunc("/api/v1/runs", s.handleRuns)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if s.deps.Runs == nil {
		respondError(w, http.StatusNotImplemented, "RUN_HISTORY_UNAVAILABLE", "run history is unavailable")
		return
	}
	limit, ok := parseLimit(w, r, 50, "RUN_LIMIT_INVALID")
	if !ok {
		return
	}
	panelID := strings.TrimSpace(r.URL.Query().Get("panel"))
	if panelID != "" && s.deps.Panels != nil {
		if _, ok := s.deps.Panels.Get(panelID); !ok {
			respondError(w, http.StatusNotFound, "PANEL_NOT_FOUND", "panel not found")
			return
		}
	}
	runs, err := s.deps.Runs.List(panelID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RUN_HISTORY_LIST_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"runs": runs})
}
