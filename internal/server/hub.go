package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one engine event pushed to websocket clients.
type Event struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Hub fans engine events out to connected websocket clients. It implements
// engine.EventSink; Broadcast never blocks the scheduler loop.
type Hub struct {
	upgrader websocket.Upgrader
	conns    map[*websocket.Conn]struct{}
	connMux  sync.Mutex
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// HandleWS upgrades the request and keeps the connection registered until
// the client goes away. Inbound frames are drained and ignored; the stream
// is push-only.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	h.connMux.Lock()
	h.conns[conn] = struct{}{}
	h.connMux.Unlock()
	h.logger.Debug("WebSocket client connected", "remote", conn.RemoteAddr().String())

	go func() {
		defer func() {
			h.connMux.Lock()
			delete(h.conns, conn)
			h.connMux.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an event to every connected client. Write failures drop
// the connection; the client's read loop cleans it up.
func (h *Hub) Broadcast(eventType string, payload map[string]any) {
	event := Event{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode event", "error", err)
		return
	}

	h.connMux.Lock()
	defer h.connMux.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("Dropping websocket client", "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// Close drops every client connection.
func (h *Hub) Close() {
	h.connMux.Lock()
	defer h.connMux.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
