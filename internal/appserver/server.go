package appserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"agentdock/internal/localapi"
	"agentdock/internal/panel"
)

// PanelSource is the part of the panel registry the page routes need.
type PanelSource interface {
	Get(id string) (panel.Panel, bool)
	List() []panel.Panel
}

type Deps struct {
	LocalAPI       localapi.Deps
	LocalAPIHandle http.Handler
	Panels         PanelSource
	Metrics        http.Handler
	Logger         *slog.Logger
}

type Server struct {
	local   http.Handler
	pages   http.Handler
	metrics http.Handler
	api     *localapi.Server
}

func NewServer(deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{metrics: deps.Metrics}
	s.local = deps.LocalAPIHandle
	if s.local == nil {
		s.api = localapi.NewServer(deps.LocalAPI)
		s.local = s.api.Handler()
	}
	s.pages = newPageHandler(deps.Panels, logger.With("module", "appserver"))
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

// Close releases the local api server when this server created it.
func (s *Server) Close() {
	if s != nil && s.api != nil {
		s.api.Close()
	}
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case p == "/healthz" || strings.HasPrefix(p, "/api/v1/") || strings.HasPrefix(p, "/ws/"):
		s.local.ServeHTTP(w, r)
	case p == "/metrics":
		if s.metrics == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"ok":    false,
				"error": map[string]any{"code": "METRICS_DISABLED", "message": "metrics are disabled"},
			})
			return
		}
		s.metrics.ServeHTTP(w, r)
	default:
		s.pages.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
