package services

import (
	"context"
	"errors"
	"testing"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/user"
	"parley-chat/internal/events"
	"parley-chat/internal/repository/memstore"
)

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	events   *events.Recorder
	perms    *PermissionService
	members  *MembershipService
	convs    *ConversationService
	chats    *DirectChatService
	messages *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	rec := &events.Recorder{}
	paging := DefaultPaging()
	return &fixture{
		ctx:      context.Background(),
		store:    store,
		events:   rec,
		perms:    NewPermissionService(store, rec, nil),
		members:  NewMembershipService(store, rec, nil),
		convs:    NewConversationService(store, rec, nil, paging),
		chats:    NewDirectChatService(store, rec),
		messages: NewMessageService(store, rec, nil, paging),
	}
}

func (f *fixture) user(name string) int64 {
	return f.store.AddUser(user.User{Name: name}).ID
}

func (f *fixture) group(t *testing.T, ownerID int64, name string) conversation.Ref {
	t.Helper()
	conv, err := f.convs.Create(f.ctx, ownerID, conversation.KindGroup, conversation.Details{Name: name})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return conv.Ref()
}

func (f *fixture) join(t *testing.T, ref conversation.Ref, userIDs ...int64) {
	t.Helper()
	for _, id := range userIDs {
		if err := f.members.Join(f.ctx, ref, id); err != nil {
			t.Fatalf("join user %d: %v", id, err)
		}
	}
}

func (f *fixture) count(t *testing.T, ref conversation.Ref, userID int64) int {
	t.Helper()
	c, err := f.store.Repos().Counters.Get(f.ctx, ref, userID)
	if err != nil {
		t.Fatalf("counter of user %d in %s: %v", userID, ref, err)
	}
	return c.Count
}

func (f *fixture) send(t *testing.T, senderID int64, ref conversation.Ref, content string) int64 {
	t.Helper()
	m, err := f.messages.CreateMessage(f.ctx, senderID, ref, content, nil)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	return m.ID
}

func assertIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
