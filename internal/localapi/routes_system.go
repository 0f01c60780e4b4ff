package localapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"agentdock/internal/historydb"
	"agentdock/internal/systempicker"
)

func (s *Server) registerSystemRoutes() {
	s.mux.HandleFunc("/api/v1/system/capabilities", s.handleSystemCapabilities)
	s.mux.HandleFunc("/api/v1/system/select-directory", s.handleSelectDirectory)
}

func (s *Server) handleSystemCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	respondOK(w, map[string]any{
		"directory_picker": s.deps.PickDirectory != nil,
		"fs_browser":       s.deps.FSBrowser != nil,
	})
}

func (s *Server) handleSelectDirectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if s.deps.PickDirectory == nil {
		respondError(w, http.StatusNotImplemented, "PICK_DIRECTORY_UNAVAILABLE", "directory picker is unavailable")
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	path, err := s.deps.PickDirectory(r.Context(), strings.TrimSpace(req.Title))
	if err != nil {
		switch {
		case errors.Is(err, systempicker.ErrCanceled):
			respondOK(w, map[string]any{"path": "", "canceled": true})
		case errors.Is(err, systempicker.ErrUnsupported):
			respondError(w, http.StatusNotImplemented, "PICK_DIRECTORY_UNAVAILABLE", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "PICK_DIRECTORY_FAILED", err.Error())
		}
		return
	}
	if s.deps.PathHistory != nil {
		if err := s.deps.PathHistory.Upsert(path, historydb.KindDir); err != nil {
			s.logger.Warn("record path history failed", "path", path, "err", err)
		}
	}
	respondOK(w, map[string]any{"path": path, "canceled": false})
}
