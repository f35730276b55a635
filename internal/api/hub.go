package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/chartscript/internal/metrics"
)

const (
	clientSendBuffer = 32
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 30 * time.Second
)

// Hub fans script outputs out to websocket clients. A client that cannot keep up
// loses messages rather than blocking the broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	script string // empty receives every script
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		metrics: m,
		logger:  logger,
	}
}

// Register attaches a connection and starts its pumps
func (h *Hub) Register(conn *websocket.Conn, script string) {
	c := &client{
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		hub:    h,
		script: script,
	}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	h.logger.Info().
		Str("remote", conn.RemoteAddr().String()).
		Str("script", script).
		Int("clients", count).
		Msg("WebSocket client connected")

	go c.writePump()
	go c.readPump()
}

// Broadcast queues payload for every client subscribed to script
func (h *Hub) Broadcast(script string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.script != "" && c.script != script {
			continue
		}
		select {
		case c.send <- payload:
		default:
			if h.metrics != nil {
				h.metrics.WSDropped.Inc()
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}
	h.logger.Info().Str("remote", c.conn.RemoteAddr().String()).Msg("WebSocket client disconnected")
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug().Err(err).Msg("WebSocket write error")
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

// readPump discards client messages and detects disconnects
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.logger.Debug().Err(err).Msg("WebSocket read error")
			return
		}
	}
}
