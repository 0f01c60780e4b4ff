package localapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"agentdock/internal/settings"
)

func (s *Server) registerSettingsRoutes() {
	s.mux.HandleFunc("/api/v1/settings", s.handleSettings)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Settings == nil {
		respondError(w, http.StatusNotImplemented, "SETTINGS_UNAVAILABLE", "settings store is unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		snap, err := s.deps.Settings.Snapshot()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "SETTINGS_LOAD_FAILED", err.Error())
			return
		}
		respondOK(w, map[string]any{"settings": snap})
	case http.MethodPatch:
		var req struct {
			Settings map[string]string `json:"settings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
		if err := s.deps.Settings.SetMany(req.Settings); err != nil {
			if errors.Is(err, settings.ErrUnknownKey) {
				respondError(w, http.StatusBadRequest, "UNKNOWN_SETTING", err.Error())
				return
			}
			respondError(w, http.StatusInternalServerError, "SETTINGS_SAVE_FAILED", err.Error())
			return
		}
		snap, err := s.deps.Settings.Snapshot()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "SETTINGS_LOAD_FAILED", err.Error())
			return
		}
		s.logger.Info("settings updated", "keys", len(req.Settings))
		respondOK(w, map[string]any{"settings": snap})
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}
