package message

import (
	"time"

	"parley-chat/internal/domain/conversation"
)

// Message represents the messages table. Exactly one of ChatID, GroupID and ChannelID is set.
type Message struct {
	ID          int64        `gorm:"primaryKey" json:"id"`
	SenderID    int64        `gorm:"not null;index" json:"senderId"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	IsEdited    bool         `gorm:"not null;default:false" json:"isEdit"`
	IsRead      bool         `gorm:"not null;default:false" json:"isRead"`
	ChatID      *int64       `gorm:"index:idx_messages_chat_created,priority:1" json:"chatId,omitempty"`
	GroupID     *int64       `gorm:"index:idx_messages_group_created,priority:1" json:"groupId,omitempty"`
	ChannelID   *int64       `gorm:"index:idx_messages_channel_created,priority:1" json:"channelId,omitempty"`
	CreatedAt   time.Time    `gorm:"index:idx_messages_chat_created,priority:2;index:idx_messages_group_created,priority:2;index:idx_messages_channel_created,priority:2" json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Attachments []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"media"`
}

func (Message) TableName() string {
	return "messages"
}

// New builds an unsaved message addressed to ref.
func New(ref conversation.Ref, senderID int64, content string) Message {
	m := Message{SenderID: senderID, Content: content}
	id := ref.ID
	switch ref.Kind {
	case conversation.KindChat:
		m.ChatID = &id
	case conversation.KindGroup:
		m.GroupID = &id
	case conversation.KindChannel:
		m.ChannelID = &id
	}
	return m
}

// Ref resolves the owning conversation from whichever foreign key is set.
func (m Message) Ref() conversation.Ref {
	switch {
	case m.ChatID != nil:
		return conversation.ChatRef(*m.ChatID)
	case m.GroupID != nil:
		return conversation.GroupRef(*m.GroupID)
	case m.ChannelID != nil:
		return conversation.ChannelRef(*m.ChannelID)
	}
	return conversation.Ref{}
}

// Column names the foreign key column used for messages of the given kind.
func Column(kind conversation.Kind) string {
	switch kind {
	case conversation.KindChat:
		return "chat_id"
	case conversation.KindGroup:
		return "group_id"
	case conversation.KindChannel:
		return "channel_id"
	}
	return ""
}

// MemberReceipt represents the member_receipts table (group and channel messages).
type MemberReceipt struct {
	MessageID    int64     `gorm:"primaryKey"`
	MembershipID int64     `gorm:"primaryKey;index"`
	ReadAt       time.Time `gorm:"not null"`
}

func (MemberReceipt) TableName() string {
	return "member_receipts"
}

// UserReceipt represents the user_receipts table (direct chat messages).
type UserReceipt struct {
	MessageID int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"primaryKey"`
	ReadAt    time.Time `gorm:"not null"`
}

func (UserReceipt) TableName() string {
	return "user_receipts"
}
