package repository

import (
	"context"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/domain/user"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (user.User, error)
	Exists(ctx context.Context, id int64) (bool, error)
	UpdateLastOnline(ctx context.Context, id int64, at time.Time) error
}

type ConversationRepository interface {
	Create(ctx context.Context, kind conversation.Kind, details conversation.Details) (conversation.Conversation, error)
	Get(ctx context.Context, ref conversation.Ref) (conversation.Conversation, error)
	// Lock takes a row lock on the conversation for the rest of the transaction.
	Lock(ctx context.Context, ref conversation.Ref) error
	UpdateDetails(ctx context.Context, ref conversation.Ref, details conversation.Details) (conversation.Conversation, error)
	Delete(ctx context.Context, ref conversation.Ref) error
	AdjustMemberCount(ctx context.Context, ref conversation.Ref, delta int) error
	Search(ctx context.Context, kind conversation.Kind, prefix string, limit int) ([]conversation.Conversation, error)

	SetDiscussion(ctx context.Context, channelID int64, groupID *int64) error
	FindChannelByDiscussion(ctx context.Context, groupID int64) (conversation.Conversation, error)

	CreateDirectChat(ctx context.Context, c *conversation.DirectChat) error
	GetDirectChat(ctx context.Context, id int64) (conversation.DirectChat, error)
	FindDirectChat(ctx context.Context, userA, userB int64) (conversation.DirectChat, error)
	DeleteDirectChat(ctx context.Context, id int64) error
}

type RoleRepository interface {
	Create(ctx context.Context, ref conversation.Ref, t role.Template) (role.Role, error)
	GetByID(ctx context.Context, id int64) (role.Role, error)
	GetByName(ctx context.Context, ref conversation.Ref, name string) (role.Role, error)
	// Lock reloads the role under a row lock for the rest of the transaction. Grant-set
	// rewrites and deletes of one role are serialized on it.
	Lock(ctx context.Context, id int64) (role.Role, error)
	GetDefault(ctx context.Context, ref conversation.Ref) (role.Role, error)
	List(ctx context.Context, ref conversation.Ref) ([]role.Role, error)
	Update(ctx context.Context, id int64, name, color string) error
	DeletePermissions(ctx context.Context, id int64) error
	InsertPermissions(ctx context.Context, id int64, set permission.Set) error
	Delete(ctx context.Context, id int64) error
	DeleteByConversation(ctx context.Context, ref conversation.Ref) error
}

type MembershipRepository interface {
	Create(ctx context.Context, m *membership.Membership) error
	Get(ctx context.Context, ref conversation.Ref, userID int64) (membership.Membership, error)
	Delete(ctx context.Context, ref conversation.Ref, userID int64) error
	DeleteByConversation(ctx context.Context, ref conversation.Ref) error
	List(ctx context.Context, ref conversation.Ref) ([]membership.Member, error)
	ListUserIDs(ctx context.Context, ref conversation.Ref) ([]int64, error)
	SetRole(ctx context.Context, ref conversation.Ref, userID, roleID int64) error
	// ReassignRole moves every holder of fromRoleID to toRoleID and reports how many moved.
	ReassignRole(ctx context.Context, fromRoleID, toRoleID int64) (int64, error)
	CountByRole(ctx context.Context, roleID int64) (int64, error)
	SetMuted(ctx context.Context, ref conversation.Ref, userID int64, muted bool) error
}

type CounterRepository interface {
	Create(ctx context.Context, c *membership.NotificationCounter) error
	Get(ctx context.Context, ref conversation.Ref, userID int64) (membership.NotificationCounter, error)
	// Adjust adds delta to the counters of userIDs in one statement.
	Adjust(ctx context.Context, ref conversation.Ref, userIDs []int64, delta int) error
	Delete(ctx context.Context, ref conversation.Ref, userID int64) error
	DeleteByConversation(ctx context.Context, ref conversation.Ref) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id int64) (message.Message, error)
	// Lock loads the message under a row lock for the rest of the transaction.
	Lock(ctx context.Context, id int64) (message.Message, error)
	UpdateContent(ctx context.Context, id int64, content string) error
	SetRead(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	// ListBefore returns up to limit messages of ref created strictly before the given time, newest first.
	// A nil before lists from the newest message.
	ListBefore(ctx context.Context, ref conversation.Ref, before *time.Time, limit int) ([]message.Message, error)
	AddAttachment(ctx context.Context, a *message.Attachment) error

	// InsertMemberReceipt and InsertUserReceipt report whether a new receipt was written.
	InsertMemberReceipt(ctx context.Context, messageID, membershipID int64, at time.Time) (bool, error)
	InsertUserReceipt(ctx context.Context, messageID, userID int64, at time.Time) (bool, error)
	HasUserReceipt(ctx context.Context, messageID, userID int64) (bool, error)
	// UnreadMemberIDs lists the user ids of members, other than the sender, who were counted for m
	// and have not read it yet.
	UnreadMemberIDs(ctx context.Context, m message.Message) ([]int64, error)
}

// Repositories groups the repositories bound to one database handle or transaction.
type Repositories struct {
	Users         UserRepository
	Conversations ConversationRepository
	Roles         RoleRepository
	Memberships   MembershipRepository
	Counters      CounterRepository
	Messages      MessageRepository
}

// Store hands out repositories and runs transactions over them.
type Store interface {
	Repos() Repositories
	Transaction(ctx context.Context, fn func(r Repositories) error) error
}
