package services

import (
	"strings"
	"testing"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/events"
	parley_errors "parley-chat/pkg/errors"
)

func TestCreateDiscussion(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	channel, err := f.convs.Create(f.ctx, owner, conversation.KindChannel, conversation.Details{Name: "news"})
	if err != nil {
		t.Fatal(err)
	}

	group, err := f.convs.CreateDiscussion(f.ctx, owner, channel.ID)
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	if group.Type != conversation.KindGroup || !group.IsPrivate || group.Name != "news - обсуждение" {
		t.Errorf("discussion = %+v", group)
	}

	repos := f.store.Repos()
	linked, err := repos.Conversations.Get(f.ctx, channel.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if linked.GroupID == nil || *linked.GroupID != group.ID {
		t.Fatalf("channel links %v, want %d", linked.GroupID, group.ID)
	}
	back, err := repos.Conversations.FindChannelByDiscussion(f.ctx, group.ID)
	if err != nil || back.ID != channel.ID {
		t.Fatalf("reverse lookup = %+v, %v", back, err)
	}

	_, err = f.convs.CreateDiscussion(f.ctx, owner, channel.ID)
	assertIs(t, err, parley_errors.ErrConflict)

	found, err := f.convs.Search(f.ctx, conversation.KindGroup, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("private discussion shows up in search: %+v", found)
	}
}

func TestCreateDiscussionNeedsPermission(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	reader := f.user("reader")
	channel, err := f.convs.Create(f.ctx, owner, conversation.KindChannel, conversation.Details{Name: "news"})
	if err != nil {
		t.Fatal(err)
	}
	f.join(t, channel.Ref(), reader)

	_, err = f.convs.CreateDiscussion(f.ctx, reader, channel.ID)
	assertIs(t, err, parley_errors.ErrForbidden)
	assertIs(t, f.convs.DeleteDiscussion(f.ctx, owner, channel.ID), parley_errors.ErrNotFound)
}

func TestDeleteDiscussion(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	channel, err := f.convs.Create(f.ctx, owner, conversation.KindChannel, conversation.Details{Name: "news"})
	if err != nil {
		t.Fatal(err)
	}
	group, err := f.convs.CreateDiscussion(f.ctx, owner, channel.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.convs.DeleteDiscussion(f.ctx, owner, channel.ID); err != nil {
		t.Fatalf("delete discussion: %v", err)
	}
	repos := f.store.Repos()
	if _, err := repos.Conversations.Get(f.ctx, group.Ref()); err == nil {
		t.Error("discussion group still exists")
	}
	c, _ := repos.Conversations.Get(f.ctx, channel.Ref())
	if c.GroupID != nil {
		t.Errorf("channel still links %d", *c.GroupID)
	}
	if got := f.events.Named(events.EventDeleteChat); len(got) != 1 || got[0].Room != events.ConversationRoom(group.Ref()) {
		t.Errorf("delete-chat events = %+v", got)
	}
	if got := f.events.Evictions(); len(got) != 1 || got[0] != (events.Eviction{Room: events.ConversationRoom(group.Ref())}) {
		t.Errorf("evictions = %+v, want the discussion room closed", got)
	}

	if _, err := f.convs.CreateDiscussion(f.ctx, owner, channel.ID); err != nil {
		t.Fatalf("recreate discussion: %v", err)
	}
}

func TestDeleteChannelTakesDiscussion(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	reader := f.user("reader")
	channel, err := f.convs.Create(f.ctx, owner, conversation.KindChannel, conversation.Details{Name: "news"})
	if err != nil {
		t.Fatal(err)
	}
	f.join(t, channel.Ref(), reader)
	group, err := f.convs.CreateDiscussion(f.ctx, owner, channel.ID)
	if err != nil {
		t.Fatal(err)
	}
	f.send(t, owner, channel.Ref(), "announcement")

	assertIs(t, f.convs.Delete(f.ctx, reader, channel.Ref()), parley_errors.ErrForbidden)

	f.events.Reset()
	if err := f.convs.Delete(f.ctx, owner, channel.Ref()); err != nil {
		t.Fatalf("delete channel: %v", err)
	}

	repos := f.store.Repos()
	for _, ref := range []conversation.Ref{channel.Ref(), group.Ref()} {
		if _, err := repos.Conversations.Get(f.ctx, ref); err == nil {
			t.Errorf("%s still exists", ref)
		}
		if roles, _ := repos.Roles.List(f.ctx, ref); len(roles) != 0 {
			t.Errorf("%s still has %d roles", ref, len(roles))
		}
		if ids, _ := repos.Memberships.ListUserIDs(f.ctx, ref); len(ids) != 0 {
			t.Errorf("%s still has members %v", ref, ids)
		}
	}
	if _, err := repos.Counters.Get(f.ctx, channel.Ref(), reader); err == nil {
		t.Error("reader counter survived")
	}
	if got := len(f.events.Named(events.EventDeleteChat)); got != 2 {
		t.Errorf("delete-chat events = %d, want 2", got)
	}
	closed := map[events.Room]bool{}
	for _, e := range f.events.Evictions() {
		if e.UserID == 0 {
			closed[e.Room] = true
		}
	}
	if !closed[events.ConversationRoom(channel.Ref())] || !closed[events.ConversationRoom(group.Ref())] {
		t.Errorf("closed rooms = %v, want channel and discussion", closed)
	}
}

func TestEditConversation(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	member := f.user("member")
	ref := f.group(t, owner, "Test")
	f.join(t, ref, member)

	edited, err := f.convs.Edit(f.ctx, owner, ref, conversation.Details{Name: " Renamed ", Description: "about", IsPrivate: true})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Name != "Renamed" || edited.Description != "about" || !edited.IsPrivate {
		t.Errorf("edited = %+v", edited)
	}

	tests := []struct {
		name    string
		actor   int64
		details conversation.Details
		want    error
	}{
		{name: "no edit permission", actor: member, details: conversation.Details{Name: "x"}, want: parley_errors.ErrForbidden},
		{name: "empty name", actor: owner, details: conversation.Details{Name: ""}, want: parley_errors.ErrInvalidInput},
		{name: "long name", actor: owner, details: conversation.Details{Name: strings.Repeat("я", 65)}, want: parley_errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.convs.Edit(f.ctx, tt.actor, ref, tt.details)
			assertIs(t, err, tt.want)
		})
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	small := f.group(t, owner, "Golang")
	big := f.group(t, owner, "gophers")
	f.group(t, owner, "rustaceans")
	if _, err := f.convs.Create(f.ctx, owner, conversation.KindGroup, conversation.Details{Name: "go-private", IsPrivate: true}); err != nil {
		t.Fatal(err)
	}
	f.join(t, big, f.user("a"), f.user("b"))

	found, err := f.convs.Search(f.ctx, conversation.KindGroup, "GO")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d groups, want 2", len(found))
	}
	if found[0].ID != big.ID || found[1].ID != small.ID {
		t.Errorf("order = [%d %d], want [%d %d]", found[0].ID, found[1].ID, big.ID, small.ID)
	}

	_, err = f.convs.Search(f.ctx, conversation.KindChat, "go")
	assertIs(t, err, parley_errors.ErrInvalidInput)
}

func TestViewConversation(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	reader := f.user("reader")
	ref := f.group(t, owner, "Test")
	f.join(t, ref, reader)
	f.send(t, owner, ref, "one")
	f.send(t, owner, ref, "two")

	page, err := f.convs.View(f.ctx, reader, ref)
	if err != nil {
		t.Fatal(err)
	}
	if page.Conversation.ID != ref.ID || page.Unread != 2 || len(page.Messages) != 2 {
		t.Errorf("page = %+v", page)
	}
	if page.Messages[0].Content != "two" {
		t.Errorf("newest message first, got %q", page.Messages[0].Content)
	}

	_, err = f.convs.View(f.ctx, f.user("outsider"), ref)
	assertIs(t, err, parley_errors.ErrUnauthorized)
}

func TestCreateConversationRejects(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")

	_, err := f.convs.Create(f.ctx, owner, conversation.KindChat, conversation.Details{Name: "x"})
	assertIs(t, err, parley_errors.ErrInvalidInput)
	_, err = f.convs.Create(f.ctx, owner, conversation.KindGroup, conversation.Details{})
	assertIs(t, err, parley_errors.ErrInvalidInput)
	_, err = f.convs.Create(f.ctx, 999, conversation.KindGroup, conversation.Details{Name: "ghost"})
	assertIs(t, err, parley_errors.ErrNotFound)

	if found, _ := f.convs.Search(f.ctx, conversation.KindGroup, "ghost"); len(found) != 0 {
		t.Error("failed create left a group behind")
	}
}
