package localapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"agentdock/internal/panel"
	"agentdock/internal/protocol"
)

const maxMessageBytes = 1 << 20

func (s *Server) registerPanelRoutes() {
	s.mux.HandleFunc("/api/v1/panels", s.handlePanels)
	s.mux.HandleFunc("/api/v1/panels/", s.handlePanelActions)
}

func (s *Server) handlePanels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if s.deps.Panels == nil {
		respondOK(w, map[string]any{"panels": []panel.Info{}})
		return
	}
	respondOK(w, map[string]any{"panels": s.deps.Panels.Infos()})
}

// handlePanelActions serves POST /api/v1/panels/{id}/messages for clients
// that do not hold a websocket. Replies still arrive over the websocket.
func (s *Server) handlePanelActions(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/panels/"), "/"), "/")
	if len(parts) != 2 || parts[1] != "messages" || parts[0] == "" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "not found")
		return
	}
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if s.deps.Panels == nil {
		respondError(w, http.StatusNotFound, "PANEL_NOT_FOUND", "panel not found")
		return
	}
	p, ok := s.deps.Panels.Get(parts[0])
	if !ok {
		respondError(w, http.StatusNotFound, "PANEL_NOT_FOUND", "panel not found")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	msg, err := protocol.ParseInbound(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error())
		return
	}
	if err := p.HandleMessage(r.Context(), msg); err != nil {
		if errors.Is(err, panel.ErrUnknownCommand) {
			respondError(w, http.StatusBadRequest, "UNKNOWN_COMMAND", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "PANEL_MESSAGE_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"panel": p.ID(), "command": msg.Command, "running": p.IsRunning()})
}
