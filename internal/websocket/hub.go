package websocket

import (
	"context"
	"sync"

	"parley-chat/internal/events"
)

// Hub tracks connected clients and the rooms they are subscribed to.
type Hub struct {
	clients map[string]*Client
	rooms   map[events.Room]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu  sync.RWMutex
	log *Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[events.Room]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        NewLogger(),
	}
}

// Run processes registrations until ctx is cancelled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, client := range h.clients {
				h.removeClientLocked(client)
			}
			h.mu.Unlock()
			close(h.done)
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register blocks until Run has accepted the client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister is a no-op after the hub has stopped; Run already dropped every client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds client to room. A closed client is ignored.
func (h *Hub) Subscribe(client *Client, room events.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.isClosed() {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.join(room)
}

func (h *Hub) Unsubscribe(client *Client, room events.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(client, room)
	client.leave(room)
}

// EvictUser removes every connection of userID from room and reports how many left.
func (h *Hub) EvictUser(room events.Room, userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	evicted := 0
	for client := range h.rooms[room] {
		if client.UserID != userID {
			continue
		}
		h.unsubscribeLocked(client, room)
		client.leave(room)
		evicted++
		h.log.Info("client_evicted", client.UserID, client.ID, roomField(room))
	}
	return evicted
}

// CloseRoom unsubscribes every client from room.
func (h *Hub) CloseRoom(room events.Room) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	for client := range members {
		client.leave(room)
	}
	delete(h.rooms, room)
	return len(members)
}

// Publish queues payload on every client in room and reports how many accepted it.
// Clients with a full buffer miss the frame.
func (h *Hub) Publish(room events.Room, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.rooms[room] {
		if client.SendMessage(payload) {
			delivered++
			continue
		}
		h.log.Warn("frame_dropped", client.UserID, client.ID, roomField(room))
	}
	return delivered
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients in room.
func (h *Hub) SubscriberCount(room events.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	h.log.Info("client_registered", client.UserID, client.ID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	h.removeClientLocked(client)
	h.mu.Unlock()
	h.log.Info("client_unregistered", client.UserID, client.ID)
}

func (h *Hub) removeClientLocked(client *Client) {
	for _, room := range client.Rooms() {
		h.unsubscribeLocked(client, room)
	}
	delete(h.clients, client.ID)
	client.close()
}

func (h *Hub) unsubscribeLocked(client *Client, room events.Room) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}
