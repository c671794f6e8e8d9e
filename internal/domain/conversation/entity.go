package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	parley_errors "parley-chat/pkg/errors"
)

// Kind discriminates the three conversation variants.
type Kind string

const (
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
	KindChat    Kind = "chat"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGroup, KindChannel, KindChat:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown conversation type %q", parley_errors.ErrInvalidInput, s)
}

// HasRoles reports whether conversations of this kind carry roles and permissions.
func (k Kind) HasRoles() bool {
	return k == KindGroup || k == KindChannel
}

// Ref identifies a conversation by kind and id.
type Ref struct {
	Kind Kind  `json:"type"`
	ID   int64 `json:"smthId"`
}

func GroupRef(id int64) Ref   { return Ref{Kind: KindGroup, ID: id} }
func ChannelRef(id int64) Ref { return Ref{Kind: KindChannel, ID: id} }
func ChatRef(id int64) Ref    { return Ref{Kind: KindChat, ID: id} }

func (r Ref) Valid() bool {
	switch r.Kind {
	case KindGroup, KindChannel, KindChat:
		return r.ID > 0
	}
	return false
}

func (r Ref) String() string {
	return string(r.Kind) + "_" + strconv.FormatInt(r.ID, 10)
}

// Details holds the editable attributes shared by groups and channels.
type Details struct {
	Name        string `gorm:"size:64;not null;index" json:"name"`
	Description string `gorm:"size:256" json:"description"`
	Avatar      string `gorm:"size:512" json:"avatar"`
	IsPrivate   bool   `gorm:"not null;default:false" json:"isPrivate"`
}

// Group represents the groups table
type Group struct {
	ID        int64 `gorm:"primaryKey"`
	Details   `gorm:"embedded"`
	QtyUsers  int `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Group) TableName() string {
	return "groups"
}

// Channel represents the channels table. GroupID links the discussion group; the group has no back-pointer.
type Channel struct {
	ID        int64 `gorm:"primaryKey"`
	Details   `gorm:"embedded"`
	QtyUsers  int    `gorm:"not null;default:0"`
	GroupID   *int64 `gorm:"uniqueIndex"`
	Group     *Group `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Channel) TableName() string {
	return "channels"
}

// DirectChat represents the direct_chats table
type DirectChat struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	User1ID   int64     `gorm:"not null;index" json:"user1Id"`
	User2ID   int64     `gorm:"not null;index" json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (DirectChat) TableName() string {
	return "direct_chats"
}

func (c DirectChat) Ref() Ref {
	return ChatRef(c.ID)
}

func (c DirectChat) HasParticipant(userID int64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the participant that is not userID.
func (c DirectChat) Other(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

func (c DirectChat) Participants() []int64 {
	return []int64{c.User1ID, c.User2ID}
}

// Conversation is the kind-independent view of a group or channel.
type Conversation struct {
	Type Kind  `json:"type"`
	ID   int64 `json:"id"`
	Details
	QtyUsers  int       `json:"qtyUsers"`
	GroupID   *int64    `json:"groupId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c Conversation) Ref() Ref {
	return Ref{Kind: c.Type, ID: c.ID}
}

func FromGroup(g Group) Conversation {
	return Conversation{
		Type:      KindGroup,
		ID:        g.ID,
		Details:   g.Details,
		QtyUsers:  g.QtyUsers,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func FromChannel(c Channel) Conversation {
	return Conversation{
		Type:      KindChannel,
		ID:        c.ID,
		Details:   c.Details,
		QtyUsers:  c.QtyUsers,
		GroupID:   c.GroupID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// DiscussionName is the name given to a channel's discussion group.
func DiscussionName(channelName string) string {
	return channelName + " - обсуждение"
}
