// Package events provides a broadcast hub for streaming session lifecycle
// events to connected admin clients over WebSocket.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout  = 5 * time.Second
	clientBacklog = 16
)

// Event is a session lifecycle notification.
type Event struct {
	Time    time.Time   `json:"time"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event types published by the session registry.
const (
	TypeSessionLaunched   = "session_launched"
	TypeSessionStopped    = "session_stopped"
	TypeSessionReconciled = "sessions_reconciled"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub fans events out to all connected clients. Slow clients are dropped
// rather than allowed to stall the rest.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
	}
}

// Publish broadcasts an event to every connected client.
func (h *Hub) Publish(eventType string, payload interface{}) {
	data, err := json.Marshal(Event{
		Time:    time.Now(),
		Type:    eventType,
		Payload: payload,
	})
	if err != nil {
		h.log.WithError(err).Warn("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			c.close()
		}
	}
}

// Serve registers a connection and blocks until the peer disconnects.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBacklog),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()

	// Drain reads so control frames are processed; any read error means
	// the peer went away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
