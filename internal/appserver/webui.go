package appserver

import (
	"log/slog"
	"net/http"
	"strings"

	"agentdock/internal/webview"
)

// pageHandler serves "/" as the panel index and "/panels/{id}" as a panel
// page. Each response carries the CSP of its own render.
type pageHandler struct {
	panels PanelSource
	logger *slog.Logger
}

func newPageHandler(panels PanelSource, logger *slog.Logger) http.Handler {
	return &pageHandler{panels: panels, logger: logger}
}

func (h *pageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Path
	switch {
	case path == "/" || path == "/index.html":
		h.serveIndex(w)
	case strings.HasPrefix(path, "/panels/"):
		h.servePanel(w, strings.Trim(strings.TrimPrefix(path, "/panels/"), "/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *pageHandler) serveIndex(w http.ResponseWriter) {
	var pages []webview.Page
	if h.panels != nil {
		for _, p := range h.panels.List() {
			pages = append(pages, webview.Page{ID: p.ID(), Title: p.Title()})
		}
	}
	doc, err := webview.RenderIndex(pages)
	if err != nil {
		h.logger.Error("render index failed", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	writeDocument(w, doc)
}

func (h *pageHandler) servePanel(w http.ResponseWriter, id string) {
	if h.panels == nil {
		http.Error(w, "panel not found", http.StatusNotFound)
		return
	}
	p, ok := h.panels.Get(id)
	if !ok {
		http.Error(w, "panel not found", http.StatusNotFound)
		return
	}
	doc, err := p.Render()
	if err != nil {
		h.logger.Error("render panel failed", "panel", id, "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	writeDocument(w, doc)
}

func writeDocument(w http.ResponseWriter, doc webview.Document) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", doc.CSP)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(doc.HTML)
}
