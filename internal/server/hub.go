package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agenthands/rsgwm/internal/core/monitor"
	"github.com/agenthands/rsgwm/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	clientBuffer = 256
)

type HubStats interface {
	SubscriberConnected()
	SubscriberDisconnected()
}

// Hub fans monitor events out to every connected event stream. It is the
// monitor.EventSink of the world model it serves.
type Hub struct {
	logger *slog.Logger
	stats  HubStats

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *slog.Logger, stats HubStats) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "hub"),
		stats:   stats,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Publish(e monitor.Event) {
	data, err := json.Marshal(protocol.EncodeEvent(e))
	if err != nil {
		h.logger.Error("failed to encode monitor event", "monitor", e.MonitorID, "error", err)
		return
	}
	h.Broadcast(data)
}

// Broadcast queues data for every subscriber. Subscribers whose buffer is
// full miss the message.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("subscriber too slow, dropping event", "remote", c.conn.RemoteAddr().String())
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.stats != nil {
		h.stats.SubscriberConnected()
	}
	go h.writePump(c)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && h.stats != nil {
		h.stats.SubscriberDisconnected()
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("subscriber write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
