// Package notify implements the realtime notification channel: a
// fire-and-forget websocket fan-out with no acknowledgment, no replay and
// no backpressure. A disconnected or slow listener simply misses events.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event names published by the ingestion and deletion flows.
const (
	EventUploadStatus     = "upload_status"
	EventMusicAdded       = "music_added"
	EventRemoveItemsBatch = "remove_music_items_batch"
)

// Message categories carried by upload_status events.
const (
	CategorySuccess = "success"
	CategoryInfo    = "info"
	CategoryDanger  = "danger"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The catalog is serve-anywhere; listeners only ever receive.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is the wire form of one event.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// client is one connected listener with its own buffered write channel and
// writer goroutine, so a stalled peer never blocks a broadcast.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every currently-connected listener.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Publish broadcasts an event to all connected listeners. Delivery is
// best-effort: a client whose buffer is full is dropped on the spot.
func (h *Hub) Publish(event string, payload interface{}) {
	data, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		slog.Error("failed to encode notification", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			slog.Warn("dropping slow notification listener")
		}
	}
}

// ListenerCount returns the number of connected listeners.
func (h *Hub) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket listener connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("notification listener connected", "listeners", total)

	go h.writeLoop(c)
	go h.readLoop(c)
	return nil
}

// writeLoop drains the client's send channel and keeps the connection alive
// with pings. It exits when the send channel closes or a write fails.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames; listeners are receive-only. Its real job
// is noticing the close handshake and tearing the client down.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
