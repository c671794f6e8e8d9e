package membership

import (
	"time"

	"parley-chat/internal/domain/conversation"
)

// Membership represents the memberships table
type Membership struct {
	ID               int64             `gorm:"primaryKey" json:"id"`
	ConversationKind conversation.Kind `gorm:"type:varchar(16);not null;uniqueIndex:idx_memberships_unique,priority:1" json:"type"`
	ConversationID   int64             `gorm:"not null;uniqueIndex:idx_memberships_unique,priority:2" json:"smthId"`
	UserID           int64             `gorm:"not null;uniqueIndex:idx_memberships_unique,priority:3;index" json:"userId"`
	RoleID           int64             `gorm:"not null;index" json:"roleId"`
	IsMuted          bool              `gorm:"not null;default:false" json:"isMuted"`
	JoinedAt         time.Time         `gorm:"not null" json:"joinedAt"`
}

func (Membership) TableName() string {
	return "memberships"
}

func (m Membership) Ref() conversation.Ref {
	return conversation.Ref{Kind: m.ConversationKind, ID: m.ConversationID}
}

// NotificationCounter represents the notification_counters table: the unread count of one user in one conversation.
type NotificationCounter struct {
	ID               int64             `gorm:"primaryKey" json:"id"`
	ConversationKind conversation.Kind `gorm:"type:varchar(16);not null;uniqueIndex:idx_counters_unique,priority:1" json:"type"`
	ConversationID   int64             `gorm:"not null;uniqueIndex:idx_counters_unique,priority:2" json:"smthId"`
	UserID           int64             `gorm:"not null;uniqueIndex:idx_counters_unique,priority:3" json:"userId"`
	Count            int               `gorm:"not null;default:0;check:chk_notification_counters_count,count >= 0" json:"count"`
}

func (NotificationCounter) TableName() string {
	return "notification_counters"
}

func NewCounter(ref conversation.Ref, userID int64) NotificationCounter {
	return NotificationCounter{ConversationKind: ref.Kind, ConversationID: ref.ID, UserID: userID}
}

// Member is a membership joined with its user and role, as listed to clients.
type Member struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	UserName  string    `json:"userName"`
	RoleID    int64     `json:"roleId"`
	RoleName  string    `json:"roleName"`
	RoleColor string    `json:"roleColor"`
	IsMuted   bool      `json:"isMuted"`
	JoinedAt  time.Time `json:"joinedAt"`
}
