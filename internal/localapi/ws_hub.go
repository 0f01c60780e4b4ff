package localapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"agentdock/internal/events"
	"agentdock/internal/panel"
	"agentdock/internal/protocol"
)

const writeTimeout = 500 * time.Millisecond

// WSHub keeps the websocket connections of every panel view and writes each
// panel message to the connections of that panel.
type WSHub struct {
	panels PanelRegistry
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]string
}

func NewWSHub(panels PanelRegistry, logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHub{panels: panels, logger: logger, clients: map[*websocket.Conn]string{}}
}

// HandleWS serves /ws/panels/{id}. Each text frame is one inbound panel
// message; a panel error goes back to the view as an error processUpdate.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/panels/"), "/")
	if h.panels == nil {
		respondError(w, http.StatusNotFound, "PANEL_NOT_FOUND", "panel not found")
		return
	}
	p, ok := h.panels.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "PANEL_NOT_FOUND", "panel not found")
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = id
	h.mu.Unlock()
	h.logger.Debug("panel view connected", "panel", id)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug("panel view disconnected", "panel", id)
	}()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := protocol.ParseInbound(data)
		if err != nil {
			h.writeTo(conn, errorUpdate("Invalid message: "+err.Error()))
			continue
		}
		// Pickers and Jenkins calls block; keep reading so cancel gets through.
		go h.dispatch(ctx, conn, p, msg)
	}
}

func (h *WSHub) dispatch(ctx context.Context, conn *websocket.Conn, p panel.Panel, msg protocol.Inbound) {
	err := p.HandleMessage(ctx, msg)
	if err == nil {
		return
	}
	if errors.Is(err, panel.ErrUnknownCommand) {
		h.logger.Debug("ignored panel message", "panel", p.ID(), "command", msg.Command)
		return
	}
	h.logger.Warn("panel message failed", "panel", p.ID(), "command", msg.Command, "err", err)
	h.writeTo(conn, errorUpdate(err.Error()))
}

func errorUpdate(message string) protocol.Outbound {
	return protocol.NewOutbound(protocol.CmdProcessUpdate, map[string]any{
		"status":  "error",
		"message": message,
	})
}

// Publish is the bus handler for panel messages.
func (h *WSHub) Publish(e events.PanelMessageEvent) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c, id := range h.clients {
		if id == e.PanelID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}
	msg, err := json.Marshal(e.Message)
	if err != nil {
		h.logger.Warn("encode panel message failed", "panel", e.PanelID, "err", err)
		return
	}
	for _, c := range clients {
		h.write(c, msg)
	}
}

func (h *WSHub) writeTo(conn *websocket.Conn, out protocol.Outbound) {
	msg, err := json.Marshal(out)
	if err != nil {
		return
	}
	h.write(conn, msg)
}

func (h *WSHub) write(conn *websocket.Conn, msg []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, msg)
}

// Connections reports how many views are connected to a panel.
func (h *WSHub) Connections(panelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, id := range h.clients {
		if id == panelID {
			n++
		}
	}
	return n
}

func (h *WSHub) CloseAll() {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
