package websocket

import (
	"context"
	"encoding/json"
	"strings"

	"parley-chat/internal/events"
	"parley-chat/internal/redis"

	"go.uber.org/zap"
)

// RedisBridge feeds frames published on redis into the local hub.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
	relayRooms bool
	log        *Logger
}

// NewRedisBridge always relays profile edits; relayRooms adds the room stream used by redis fan-out.
func NewRedisBridge(subscriber events.Subscriber, hub *Hub, relayRooms bool) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub, relayRooms: relayRooms, log: NewLogger()}
}

func (b *RedisBridge) Channels() []string {
	channels := []string{redis.UserEditedChannel}
	if b.relayRooms {
		channels = append(channels, redis.RoomChannelPrefix+"*", redis.RoomEvictChannel)
	}
	return channels
}

// Run blocks until ctx is cancelled or the subscription fails.
func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, b.Channels(), b.handle)
}

type userEdited struct {
	UserID int64 `json:"userId"`
}

func (b *RedisBridge) handle(channel string, payload []byte) {
	if channel == redis.UserEditedChannel {
		var msg userEdited
		if err := json.Unmarshal(payload, &msg); err != nil || msg.UserID <= 0 {
			b.log.Warn("bad_user_edited", 0, "", zap.ByteString("payload", payload))
			return
		}
		frame, err := events.Encode(events.EditUser())
		if err != nil {
			return
		}
		b.hub.Publish(events.UserRoom(msg.UserID), frame)
		return
	}

	if channel == redis.RoomEvictChannel {
		if !b.relayRooms {
			return
		}
		var msg roomEviction
		if err := json.Unmarshal(payload, &msg); err != nil {
			b.log.Warn("bad_room_eviction", 0, "", zap.ByteString("payload", payload))
			return
		}
		room, err := events.ParseRoom(msg.Room)
		if err != nil {
			b.log.Warn("bad_room_eviction", msg.UserID, "", zap.String("room", msg.Room))
			return
		}
		evictLocal(b.hub, room, msg.UserID)
		return
	}

	name, ok := strings.CutPrefix(channel, redis.RoomChannelPrefix)
	if !ok || !b.relayRooms {
		return
	}
	room, err := events.ParseRoom(name)
	if err != nil {
		b.log.Warn("bad_room_channel", 0, "", zap.String("channel", channel))
		return
	}
	b.hub.Publish(room, payload)
}
