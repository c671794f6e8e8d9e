package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/events"
	"parley-chat/internal/redis"

	"go.uber.org/zap"
)

// RoomRelay forwards encoded frames to other gateway instances.
type RoomRelay interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PresenceMirror copies presence changes somewhere other processes can read them.
type PresenceMirror interface {
	Set(ctx context.Context, status redis.PresenceStatus) error
}

// Presence is the last explicit signal of a user.
type Presence struct {
	Online   bool
	LastSeen time.Time
}

// Gateway is the events.Publisher backed by the hub. With a relay configured every frame goes
// through redis and reaches the local hub via the RedisBridge, so all instances see the same stream.
type Gateway struct {
	hub    *Hub
	relay  RoomRelay
	mirror PresenceMirror
	log    *Logger

	mu       sync.RWMutex
	presence map[int64]Presence
}

// NewGateway wires the hub to the optional relay and presence mirror; pass nil for either to skip it.
func NewGateway(hub *Hub, relay RoomRelay, mirror PresenceMirror) *Gateway {
	return &Gateway{
		hub:      hub,
		relay:    relay,
		mirror:   mirror,
		log:      NewLogger(),
		presence: make(map[int64]Presence),
	}
}

func (g *Gateway) BroadcastToConversation(ctx context.Context, ref conversation.Ref, e events.Event) {
	g.Publish(ctx, events.ConversationRoom(ref), e)
}

func (g *Gateway) BroadcastToUser(ctx context.Context, userID int64, e events.Event) {
	g.Publish(ctx, events.UserRoom(userID), e)
}

func (g *Gateway) BroadcastPresence(ctx context.Context, userID int64, e events.Event) {
	g.Publish(ctx, events.StatusRoom(userID), e)
}

// Publish encodes e once and delivers it to room. A relay failure falls back to local delivery.
func (g *Gateway) Publish(ctx context.Context, room events.Room, e events.Event) {
	payload, err := events.Encode(e)
	if err != nil {
		g.log.Error("encode_failed", 0, "", err, roomField(room), zap.String("name", e.Name))
		return
	}
	if g.relay != nil {
		err := g.relay.Publish(ctx, redis.RoomChannelPrefix+room.String(), payload)
		if err == nil {
			return
		}
		g.log.Error("relay_failed", 0, "", err, roomField(room))
	}
	g.hub.Publish(room, payload)
}

// roomEviction is the control message sent on redis.RoomEvictChannel. UserID 0 empties the room.
type roomEviction struct {
	Room   string `json:"room"`
	UserID int64  `json:"userId,omitempty"`
}

// LeaveConversation unsubscribes every connection of userID from the conversation room.
func (g *Gateway) LeaveConversation(ctx context.Context, ref conversation.Ref, userID int64) {
	g.evict(ctx, events.ConversationRoom(ref), userID)
}

// CloseConversation unsubscribes everyone from the conversation room.
func (g *Gateway) CloseConversation(ctx context.Context, ref conversation.Ref) {
	g.evict(ctx, events.ConversationRoom(ref), 0)
}

// evict applies locally at once and, with a relay, tells the other instances too.
func (g *Gateway) evict(ctx context.Context, room events.Room, userID int64) {
	evictLocal(g.hub, room, userID)
	if g.relay == nil {
		return
	}
	payload, err := json.Marshal(roomEviction{Room: room.String(), UserID: userID})
	if err != nil {
		return
	}
	if err := g.relay.Publish(ctx, redis.RoomEvictChannel, payload); err != nil {
		g.log.Error("relay_failed", userID, "", err, roomField(room))
	}
}

func evictLocal(hub *Hub, room events.Room, userID int64) {
	if userID > 0 {
		hub.EvictUser(room, userID)
		return
	}
	hub.CloseRoom(room)
}

// SetPresence records an explicit signal and tells the user's status room.
func (g *Gateway) SetPresence(ctx context.Context, userID int64, online bool, at time.Time) {
	g.mu.Lock()
	g.presence[userID] = Presence{Online: online, LastSeen: at}
	g.mu.Unlock()

	if g.mirror != nil {
		status := redis.PresenceStatus{UserID: userID, IsOnline: online, LastSeen: at}
		if err := g.mirror.Set(ctx, status); err != nil {
			g.log.Error("presence_mirror_failed", userID, "", err)
		}
	}
	g.BroadcastPresence(ctx, userID, events.NewStatusChange(userID, online, at))
}

// Presence returns the last signal of userID, if any.
func (g *Gateway) Presence(userID int64) (Presence, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.presence[userID]
	return p, ok
}
