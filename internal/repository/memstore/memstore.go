// Package memstore is an in-memory repository.Store. Transactions are serialized and
// run against a copy of the data that replaces the live copy only on success.
package memstore

import (
	"context"
	"sync"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/domain/user"
	"parley-chat/internal/repository"
)

type receiptKey struct {
	messageID int64
	ownerID   int64
}

type state struct {
	seq map[string]int64

	users          map[int64]user.User
	groups         map[int64]conversation.Group
	channels       map[int64]conversation.Channel
	chats          map[int64]conversation.DirectChat
	roles          map[int64]role.Role
	memberships    map[int64]membership.Membership
	counters       map[int64]membership.NotificationCounter
	messages       map[int64]message.Message
	attachments    map[int64]message.Attachment
	memberReceipts map[receiptKey]time.Time
	userReceipts   map[receiptKey]time.Time
}

func newState() *state {
	return &state{
		seq:            map[string]int64{},
		users:          map[int64]user.User{},
		groups:         map[int64]conversation.Group{},
		channels:       map[int64]conversation.Channel{},
		chats:          map[int64]conversation.DirectChat{},
		roles:          map[int64]role.Role{},
		memberships:    map[int64]membership.Membership{},
		counters:       map[int64]membership.NotificationCounter{},
		messages:       map[int64]message.Message{},
		attachments:    map[int64]message.Attachment{},
		memberReceipts: map[receiptKey]time.Time{},
		userReceipts:   map[receiptKey]time.Time{},
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *state) clone() *state {
	c := &state{
		seq:            copyMap(s.seq),
		users:          copyMap(s.users),
		groups:         copyMap(s.groups),
		channels:       copyMap(s.channels),
		chats:          copyMap(s.chats),
		roles:          make(map[int64]role.Role, len(s.roles)),
		memberships:    copyMap(s.memberships),
		counters:       copyMap(s.counters),
		messages:       copyMap(s.messages),
		attachments:    copyMap(s.attachments),
		memberReceipts: copyMap(s.memberReceipts),
		userReceipts:   copyMap(s.userReceipts),
	}
	for id, r := range s.roles {
		r.Permissions = append([]role.RolePermission(nil), r.Permissions...)
		c.roles[id] = r
	}
	return c
}

// Store keeps all data in process memory.
type Store struct {
	mu   sync.Mutex
	data *state
}

func New() *Store {
	return &Store{data: newState()}
}

// AddUser registers a user profile. Profiles are owned elsewhere; this exists for tests and local runs.
func (s *Store) AddUser(u user.User) user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.data.next("users")
	} else if u.ID > s.data.seq["users"] {
		s.data.seq["users"] = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.data.users[u.ID] = u
	return u
}

func (s *Store) Repos() repository.Repositories {
	return newRepositories(&handle{store: s})
}

// Transaction holds the store lock for the duration of fn, which makes every
// transaction serializable.
func (s *Store) Transaction(ctx context.Context, fn func(r repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(newRepositories(&handle{store: s, tx: work})); err != nil {
		return err
	}
	s.data = work
	return nil
}

type handle struct {
	store *Store
	tx    *state
}

func (h *handle) do(fn func(st *state) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return fn(h.store.data)
}

func newRepositories(h *handle) repository.Repositories {
	return repository.Repositories{
		Users:         &userRepo{h},
		Conversations: &conversationRepo{h},
		Roles:         &roleRepo{h},
		Memberships:   &membershipRepo{h},
		Counters:      &counterRepo{h},
		Messages:      &messageRepo{h},
	}
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Store = (*repository.PostgresStore)(nil)
)
