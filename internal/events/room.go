package events

import (
	"fmt"
	"strconv"
	"strings"

	"parley-chat/internal/domain/conversation"
	parley_errors "parley-chat/pkg/errors"
)

// RoomKind names a class of fan-out room.
type RoomKind string

const (
	RoomGroup   RoomKind = "group"
	RoomChannel RoomKind = "channel"
	RoomChat    RoomKind = "chat"
	RoomUser    RoomKind = "user"
	RoomStatus  RoomKind = "status"
)

// Room is a typed fan-out key. It renders as "{kind}_{id}".
type Room struct {
	Kind RoomKind
	ID   int64
}

func ConversationRoom(ref conversation.Ref) Room {
	return Room{Kind: RoomKind(ref.Kind), ID: ref.ID}
}

// UserRoom is the personal room of a user.
func UserRoom(userID int64) Room {
	return Room{Kind: RoomUser, ID: userID}
}

// StatusRoom carries presence changes of a user to its subscribers.
func StatusRoom(userID int64) Room {
	return Room{Kind: RoomStatus, ID: userID}
}

func (r Room) String() string {
	return string(r.Kind) + "_" + strconv.FormatInt(r.ID, 10)
}

// Conversation reports the conversation behind a group, channel or chat room.
func (r Room) Conversation() (conversation.Ref, bool) {
	switch r.Kind {
	case RoomGroup, RoomChannel, RoomChat:
		return conversation.Ref{Kind: conversation.Kind(r.Kind), ID: r.ID}, true
	}
	return conversation.Ref{}, false
}

func ParseRoom(s string) (Room, error) {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 {
		return Room{}, fmt.Errorf("%w: malformed room %q", parley_errors.ErrInvalidInput, s)
	}
	kind := RoomKind(s[:i])
	switch kind {
	case RoomGroup, RoomChannel, RoomChat, RoomUser, RoomStatus:
	default:
		return Room{}, fmt.Errorf("%w: unknown room kind %q", parley_errors.ErrInvalidInput, kind)
	}
	id, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return Room{}, fmt.Errorf("%w: bad room id in %q", parley_errors.ErrInvalidInput, s)
	}
	return Room{Kind: kind, ID: id}, nil
}
