package localapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"agentdock/internal/fsbrowser"
	"agentdock/internal/historydb"
)

const defaultFSLimit = 20

func (s *Server) registerFSRoutes() {
	s.mux.HandleFunc("/api/v1/fs/roots", s.withBrowser(http.MethodGet, s.handleFSRoots))
	s.mux.HandleFunc("/api/v1/fs/list", s.withBrowser(http.MethodGet, s.handleFSList))
	s.mux.HandleFunc("/api/v1/fs/resolve", s.withBrowser(http.MethodPost, s.handleFSResolve))
	s.mux.HandleFunc("/api/v1/fs/search", s.withBrowser(http.MethodGet, s.handleFSSearch))
	s.mux.HandleFunc("/api/v1/fs/history", s.handleFSHistory)
}

// withBrowser rejects other methods and a missing browser before h runs.
func (s *Server) withBrowser(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
			return
		}
		if s.deps.FSBrowser == nil {
			respondError(w, http.StatusNotImplemented, "FS_BROWSER_UNAVAILABLE", "filesystem browser is unavailable")
			return
		}
		h(w, r)
	}
}

func (s *Server) handleFSRoots(w http.ResponseWriter, _ *http.Request) {
	roots, err := s.deps.FSBrowser.Roots()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "FS_ROOTS_LIST_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"roots": roots})
}

// listOptionsFromQuery reads include_files, hidden, ext (repeatable or comma
// separated) and code, which selects the source-file extensions.
func listOptionsFromQuery(r *http.Request) fsbrowser.ListOptions {
	q := r.URL.Query()
	opts := fsbrowser.ListOptions{
		IncludeFiles: queryBool(q.Get("include_files")),
		ShowHidden:   queryBool(q.Get("hidden")),
	}
	for _, raw := range q["ext"] {
		for _, ext := range strings.Split(raw, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				opts.Extensions = append(opts.Extensions, ext)
			}
		}
	}
	if queryBool(q.Get("code")) {
		opts.IncludeFiles = true
		opts.Extensions = append(opts.Extensions, fsbrowser.CodeExtensions...)
	}
	return opts
}

func queryBool(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || strings.EqualFold(v, "true")
}

func (s *Server) handleFSList(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		respondError(w, http.StatusBadRequest, "FS_PATH_REQUIRED", "path is required")
		return
	}
	out, err := s.deps.FSBrowser.List(path, listOptionsFromQuery(r))
	if err != nil {
		respondError(w, http.StatusBadRequest, "FS_LIST_FAILED", err.Error())
		return
	}
	respondOK(w, out)
}

func (s *Server) handleFSResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	resolved, err := s.deps.FSBrowser.Resolve(req.Path)
	if err != nil {
		respondError(w, http.StatusBadRequest, "FS_RESOLVE_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"path": resolved})
}

func (s *Server) handleFSSearch(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSpace(r.URL.Query().Get("base"))
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	switch {
	case base == "":
		respondError(w, http.StatusBadRequest, "FS_BASE_REQUIRED", "base is required")
		return
	case q == "":
		respondError(w, http.StatusBadRequest, "FS_QUERY_REQUIRED", "q is required")
		return
	}
	limit, ok := parseLimit(w, r, defaultFSLimit, "FS_LIMIT_INVALID")
	if !ok {
		return
	}
	items, err := s.deps.FSBrowser.Search(base, q, limit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "FS_SEARCH_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"items": items})
}

func validKind(kind string) bool {
	return kind == historydb.KindDir || kind == historydb.KindFile
}

func (s *Server) handleFSHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.PathHistory == nil {
		respondError(w, http.StatusNotImplemented, "FS_HISTORY_UNAVAILABLE", "path history is unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.listFSHistory(w, r)
	case http.MethodPost:
		s.recordFSHistory(w, r)
	case http.MethodDelete:
		if err := s.deps.PathHistory.Clear(); err != nil {
			respondError(w, http.StatusInternalServerError, "FS_HISTORY_CLEAR_FAILED", err.Error())
			return
		}
		respondOK(w, map[string]any{"cleared": true})
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) listFSHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultFSLimit, "FS_LIMIT_INVALID")
	if !ok {
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind != "" && !validKind(kind) {
		respondError(w, http.StatusBadRequest, "FS_HISTORY_KIND_INVALID", "kind must be dir or file")
		return
	}
	rows, err := s.deps.PathHistory.List(kind, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "FS_HISTORY_LIST_FAILED", err.Error())
		return
	}
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, map[string]any{
			"path":              row.Path,
			"kind":              row.Kind,
			"first_accessed_at": row.FirstAccessed.Unix(),
			"last_accessed_at":  row.LastAccessed.Unix(),
			"access_count":      row.AccessCount,
		})
	}
	respondOK(w, map[string]any{"items": items})
}

func (s *Server) recordFSHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		respondError(w, http.StatusBadRequest, "FS_PATH_REQUIRED", "path is required")
		return
	}
	kind := strings.TrimSpace(req.Kind)
	if kind == "" {
		kind = historydb.KindDir
	}
	if !validKind(kind) {
		respondError(w, http.StatusBadRequest, "FS_HISTORY_KIND_INVALID", "kind must be dir or file")
		return
	}
	if err := s.deps.PathHistory.Upsert(path, kind); err != nil {
		respondError(w, http.StatusInternalServerError, "FS_HISTORY_WRITE_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"path": path, "kind": kind})
}
