package events

import (
	"encoding/json"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/permission"
)

// Outbound event names. Existing clients depend on them.
const (
	EventChangeMember    = "change-member"
	EventChatUpdated     = "chat-updated"
	EventCreateRole      = "create-role"
	EventAssignRole      = "assign-role"
	EventDeleteChat      = "delete-chat"
	EventSetStatusOnline = "set-status-online"
	EventEditUser        = "edit-user"
	EventTyping          = "typing"
	EventTypingStop      = "typing-stop"
)

// Kinds of chat-updated events.
const (
	ChatMessage       = "message"
	ChatMessageEdit   = "message-edit"
	ChatMessageDelete = "message-delete"
	ChatMessageStatus = "message-status"
	ChatNotification  = "notification"
)

const (
	ActionAdd    = "add"
	ActionDelete = "delete"

	Increment = "increment"
	Decrement = "decrement"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Event is a named payload pushed to a room.
type Event struct {
	Name string
	Data interface{}
}

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Encode(e Event) ([]byte, error) {
	var data json.RawMessage
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Frame{Event: e.Name, Data: data})
}

type ChangeMember struct {
	Type   conversation.Kind `json:"type"`
	SmthID int64             `json:"smthId"`
	UserID int64             `json:"userId"`
	Action string            `json:"action"`
	Data   interface{}       `json:"data"`
	Chat   interface{}       `json:"chat"`
	Name   *string           `json:"name"`
}

func NewChangeMember(c ChangeMember) Event {
	return Event{Name: EventChangeMember, Data: c}
}

// ChatUpdated covers every message-level change of a conversation.
type ChatUpdated struct {
	Type                 conversation.Kind `json:"type"`
	SmthID               int64             `json:"smthId"`
	Event                string            `json:"event"`
	MessageID            int64             `json:"messageId,omitempty"`
	UserID               int64             `json:"userId,omitempty"`
	NewContent           string            `json:"newContent,omitempty"`
	NewMessageData       interface{}       `json:"newMessageData,omitempty"`
	IncrementOrDecrement string            `json:"incrementOrDecrement,omitempty"`
}

func NewChatUpdated(ref conversation.Ref, u ChatUpdated) Event {
	u.Type, u.SmthID = ref.Kind, ref.ID
	return Event{Name: EventChatUpdated, Data: u}
}

// Notification tells a user that its unread counter for ref moved by one.
func Notification(ref conversation.Ref, userID int64, direction string) Event {
	return NewChatUpdated(ref, ChatUpdated{Event: ChatNotification, UserID: userID, IncrementOrDecrement: direction})
}

type CreateRole struct {
	Type         conversation.Kind `json:"type"`
	SmthID       int64             `json:"smthId"`
	Name         string            `json:"name"`
	Permissions  permission.Set    `json:"permissions"`
	Color        string            `json:"color"`
	IsSystemRole bool              `json:"isSystemRole"`
}

func NewCreateRole(c CreateRole) Event {
	return Event{Name: EventCreateRole, Data: c}
}

type AssignRole struct {
	Type     conversation.Kind `json:"type"`
	SmthID   int64             `json:"smthId"`
	UserID   int64             `json:"userId"`
	RoleName string            `json:"roleName"`
}

func NewAssignRole(ref conversation.Ref, userID int64, roleName string) Event {
	return Event{Name: EventAssignRole, Data: AssignRole{Type: ref.Kind, SmthID: ref.ID, UserID: userID, RoleName: roleName}}
}

type DeleteChat struct {
	Type   conversation.Kind `json:"type"`
	SmthID int64             `json:"smthId"`
}

func NewDeleteChat(ref conversation.Ref) Event {
	return Event{Name: EventDeleteChat, Data: DeleteChat{Type: ref.Kind, SmthID: ref.ID}}
}

type StatusChange struct {
	UserID   int64     `json:"userId"`
	Event    string    `json:"event"`
	LastSeen time.Time `json:"lastSeen"`
}

func NewStatusChange(userID int64, online bool, lastSeen time.Time) Event {
	status := StatusOffline
	if online {
		status = StatusOnline
	}
	return Event{Name: EventSetStatusOnline, Data: StatusChange{UserID: userID, Event: status, LastSeen: lastSeen}}
}

// EditUser carries no payload; clients re-fetch the profile.
func EditUser() Event {
	return Event{Name: EventEditUser}
}

// Typing is echoed to a conversation room while a member writes.
type Typing struct {
	Type      conversation.Kind `json:"type"`
	SmthID    int64             `json:"smthId"`
	WritersID int64             `json:"writersId"`
}

// NewTyping builds a typing or typing-stop event for writerID.
func NewTyping(name string, ref conversation.Ref, writerID int64) Event {
	return Event{Name: name, Data: Typing{Type: ref.Kind, SmthID: ref.ID, WritersID: writerID}}
}
