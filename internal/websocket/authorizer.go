package websocket

import (
	"context"
	"errors"

	"parley-chat/internal/events"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"
)

// RoomAuthorizer handles authorization for room subscriptions
type RoomAuthorizer struct {
	store repository.Store
}

func NewRoomAuthorizer(store repository.Store) *RoomAuthorizer {
	return &RoomAuthorizer{store: store}
}

// CanSubscribe checks if userID may receive the frames of room.
func (a *RoomAuthorizer) CanSubscribe(ctx context.Context, userID int64, room events.Room) (bool, error) {
	switch room.Kind {
	case events.RoomUser:
		return room.ID == userID, nil
	case events.RoomStatus:
		return true, nil
	case events.RoomChat:
		chat, err := a.store.Repos().Conversations.GetDirectChat(ctx, room.ID)
		if errors.Is(err, parley_errors.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return chat.HasParticipant(userID), nil
	}

	ref, ok := room.Conversation()
	if !ok {
		return false, nil
	}
	_, err := a.store.Repos().Memberships.Get(ctx, ref, userID)
	if errors.Is(err, parley_errors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
