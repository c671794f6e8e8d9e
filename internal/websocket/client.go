package websocket

import (
	"context"
	"sync"
	"time"

	"parley-chat/internal/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 64 * 1024
)

// Client represents a connected WebSocket client
type Client struct {
	ID     string
	UserID int64
	Conn   *websocket.Conn
	Send   chan []byte

	limiter *rate.Limiter

	mu     sync.RWMutex
	rooms  map[events.Room]struct{}
	closed bool
}

// NewClient creates a client for an authenticated user. conn may be nil for in-process clients.
func NewClient(conn *websocket.Conn, userID int64, limiter *rate.Limiter) *Client {
	return &Client{
		ID:      uuid.New().String(),
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		limiter: limiter,
		rooms:   make(map[events.Room]struct{}),
	}
}

// InRoom checks if the client is subscribed to room
func (c *Client) InRoom(room events.Room) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Rooms returns the rooms the client is subscribed to
func (c *Client) Rooms() []events.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]events.Room, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Allow reports whether the client may send another inbound frame now.
func (c *Client) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

func (c *Client) join(room events.Room) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) leave(room events.Room) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// WriteLoop drains Send into the connection and keeps it alive with pings.
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close marks the client dead and closes Send. Callers hold the hub lock.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.rooms = make(map[events.Room]struct{})
	close(c.Send)
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SendMessage queues a frame without blocking. A full buffer or a closed client drops the frame.
func (c *Client) SendMessage(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}
