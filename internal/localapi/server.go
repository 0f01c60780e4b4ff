package localapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"agentdock/internal/events"
	"agentdock/internal/fsbrowser"
	"agentdock/internal/global"
	"agentdock/internal/historydb"
	"agentdock/internal/panel"
)

type ConfigStore interface {
	LoadOrInit() (global.GlobalConfig, error)
	Save(cfg global.GlobalConfig) error
}

type SettingsStore interface {
	Snapshot() (map[string]any, error)
	SetMany(values map[string]string) error
}

type PanelRegistry interface {
	Get(id string) (panel.Panel, bool)
	Infos() []panel.Info
}

type RunHistory interface {
	List(panelID string, limit int) ([]historydb.RunRecord, error)
}

type FSBrowser interface {
	Roots() ([]string, error)
	List(path string, opts fsbrowser.ListOptions) (fsbrowser.ListResult, error)
	Resolve(path string) (string, error)
	Search(base, q string, limit int) ([]fsbrowser.Item, error)
}

type PathHistory interface {
	Upsert(path, kind string) error
	List(kind string, limit int) ([]historydb.Entry, error)
	Clear() error
}

type Deps struct {
	ConfigStore   ConfigStore
	Settings      SettingsStore
	Panels        PanelRegistry
	Runs          RunHistory
	FSBrowser     FSBrowser
	PathHistory   PathHistory
	PickDirectory func(ctx context.Context, title string) (string, error)
	Bus           *events.Bus
	Logger        *slog.Logger
}

type Server struct {
	deps   Deps
	mux    *http.ServeMux
	hub    *WSHub
	logger *slog.Logger

	unsubscribe func()
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "localapi")
	s := &Server{deps: deps, mux: http.NewServeMux(), logger: logger}
	s.hub = NewWSHub(deps.Panels, logger)
	if deps.Bus != nil {
		s.unsubscribe = deps.Bus.SubscribePanelMessages(s.hub.Publish)
	}
	s.registerPanelRoutes()
	s.registerSettingsRoutes()
	s.registerConfigRoutes()
	s.registerRunRoutes()
	s.registerSystemRoutes()
	s.registerFSRoutes()
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ws/panels/", s.hub.HandleWS)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Close stops forwarding bus messages and closes every panel connection.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.hub.CloseAll()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]any{"status": "ok"})
}

// parseLimit reads a positive ?limit=, answering 400 with code when it is
// malformed. ok is false once a response has been written.
func parseLimit(w http.ResponseWriter, r *http.Request, def int, code string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		respondError(w, http.StatusBadRequest, code, "limit must be positive integer")
		return 0, false
	}
	return n, true
}

func respondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func respondError(w http.ResponseWriter, code int, errCode string, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": map[string]any{"code": errCode, "message": msg}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
