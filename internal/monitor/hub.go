// Package monitor pushes student activity to connected admin dashboards
// over websockets.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mind-engage/testportal/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Event is one message on the admin feed.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"activity_type"`
	StudentID int64     `json:"student_id"`
	Details   string    `json:"details"`
	At        time.Time `json:"created_at"`
}

// Hub fans events out to every registered client. Slow clients are dropped
// rather than allowed to block publishers.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]struct{}
	count      atomic.Int64
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
	h.count.Store(int64(len(h.clients)))
}

// Clients reports how many dashboards are connected.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Publish never blocks: when the broadcast buffer is full the event is
// dropped and logged.
func (h *Hub) Publish(a models.Activity) {
	if h == nil {
		return
	}
	at := a.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	data, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      a.Type,
		StudentID: a.StudentID,
		Details:   a.Details,
		At:        at,
	})
	if err != nil {
		log.Printf("monitor: marshal event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("monitor: broadcast buffer full, dropping %s event", a.Type)
	}
}

var upgrader = websocket.Upgrader{
	// Origin is not checked; the route sits behind JWT auth and RBAC.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades the request and streams events until the client leaves.
func Handler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		case <-r.Context().Done():
			conn.Close()
			return
		}
		go c.writePump()
		c.readPump()
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
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
