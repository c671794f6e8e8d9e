package services

import (
	"sync"
	"testing"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/events"
	"parley-chat/internal/storage"
	parley_errors "parley-chat/pkg/errors"
)

func TestGroupReadScenario(t *testing.T) {
	f := newFixture(t)
	a := f.user("A")
	b := f.user("B")

	ref := f.group(t, a, "Test")
	f.join(t, ref, b)

	members, err := f.members.ListMembers(f.ctx, a, ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	msgID := f.send(t, b, ref, "hi A")
	if got := f.count(t, ref, a); got != 1 {
		t.Fatalf("A counter after send = %d, want 1", got)
	}
	if got := f.count(t, ref, b); got != 0 {
		t.Fatalf("sender counter = %d, want 0", got)
	}

	if err := f.messages.MarkRead(f.ctx, a, msgID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := f.count(t, ref, a); got != 0 {
		t.Fatalf("A counter after read = %d, want 0", got)
	}

	if err := f.messages.DeleteMessage(f.ctx, b, msgID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := f.count(t, ref, a); got != 0 {
		t.Fatalf("A counter after delete of a read message = %d, want 0", got)
	}
}

func TestCreateMessageIncrementsOtherMembers(t *testing.T) {
	f := newFixture(t)
	sender := f.user("sender")
	ref := f.group(t, sender, "Test")
	others := []int64{f.user("a"), f.user("b"), f.user("c")}
	f.join(t, ref, others...)
	f.events.Reset()

	f.send(t, sender, ref, "one")
	f.send(t, sender, ref, "two")

	for _, id := range others {
		if got := f.count(t, ref, id); got != 2 {
			t.Errorf("user %d counter = %d, want 2", id, got)
		}
	}
	if got := f.count(t, ref, sender); got != 0 {
		t.Errorf("sender counter = %d, want 0", got)
	}

	updates := f.events.Named(events.EventChatUpdated)
	var inRoom, notifications int
	for _, p := range updates {
		cu := p.Event.Data.(events.ChatUpdated)
		switch cu.Event {
		case events.ChatMessage:
			if p.Room != events.ConversationRoom(ref) {
				t.Errorf("message event in %v", p.Room)
			}
			inRoom++
		case events.ChatNotification:
			if p.Room != events.UserRoom(cu.UserID) || cu.IncrementOrDecrement != events.Increment {
				t.Errorf("notification %+v in %v", cu, p.Room)
			}
			notifications++
		}
	}
	if inRoom != 2 || notifications != 6 {
		t.Errorf("got %d message and %d notification events, want 2 and 6", inRoom, notifications)
	}
}

func TestCreateMessageRejects(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	outsider := f.user("outsider")
	ref := f.group(t, owner, "Test")

	channel, err := f.convs.Create(f.ctx, owner, conversation.KindChannel, conversation.Details{Name: "news"})
	if err != nil {
		t.Fatal(err)
	}
	subscriber := f.user("subscriber")
	f.join(t, channel.Ref(), subscriber)

	tests := []struct {
		name    string
		sender  int64
		ref     conversation.Ref
		content string
		media   []AttachmentInput
		want    error
	}{
		{name: "empty", sender: owner, ref: ref, content: "  ", want: parley_errors.ErrInvalidInput},
		{name: "not a member", sender: outsider, ref: ref, content: "hi", want: parley_errors.ErrUnauthorized},
		{name: "channel subscriber cannot post", sender: subscriber, ref: channel.Ref(), content: "hi", want: parley_errors.ErrForbidden},
		{name: "missing group", sender: owner, ref: conversation.GroupRef(404), content: "hi", want: parley_errors.ErrNotFound},
		{
			name:    "foreign object key",
			sender:  owner,
			ref:     ref,
			content: "look",
			media:   []AttachmentInput{{ObjectKey: storage.ObjectKey(outsider, "cat.png")}},
			want:    parley_errors.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.messages.CreateMessage(f.ctx, tt.sender, tt.ref, tt.content, tt.media)
			assertIs(t, err, tt.want)
		})
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sender := f.user("sender")
	reader := f.user("reader")
	ref := f.group(t, sender, "Test")
	f.join(t, ref, reader)

	f.send(t, sender, ref, "first")
	msgID := f.send(t, sender, ref, "second")
	f.events.Reset()

	for i := 0; i < 2; i++ {
		if err := f.messages.MarkRead(f.ctx, reader, msgID); err != nil {
			t.Fatalf("mark read #%d: %v", i+1, err)
		}
	}
	if got := f.count(t, ref, reader); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
	if got := len(f.events.Events()); got != 2 {
		t.Errorf("expected status and notification events once, got %d events", got)
	}

	m, _ := f.store.Repos().Messages.GetByID(f.ctx, msgID)
	if !m.IsRead {
		t.Error("message not flagged as read")
	}

	assertIs(t, f.messages.MarkRead(f.ctx, sender, msgID), parley_errors.ErrConflict)
	assertIs(t, f.messages.MarkRead(f.ctx, f.user("outsider"), msgID), parley_errors.ErrUnauthorized)
	assertIs(t, f.messages.MarkRead(f.ctx, reader, 9999), parley_errors.ErrNotFound)
}

func TestLateJoinerIsNotCounted(t *testing.T) {
	f := newFixture(t)
	sender := f.user("sender")
	early := f.user("early")
	late := f.user("late")
	ref := f.group(t, sender, "Test")
	f.join(t, ref, early)

	msgID := f.send(t, sender, ref, "before you came")
	f.join(t, ref, late)

	if err := f.messages.MarkRead(f.ctx, late, msgID); err != nil {
		t.Fatalf("late reader: %v", err)
	}
	if got := f.count(t, ref, late); got != 0 {
		t.Fatalf("late joiner counter = %d, want 0", got)
	}

	if err := f.messages.DeleteMessage(f.ctx, sender, msgID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := f.count(t, ref, early); got != 0 {
		t.Errorf("early member counter after delete = %d, want 0", got)
	}
	if got := f.count(t, ref, late); got != 0 {
		t.Errorf("late joiner counter after delete = %d, want 0", got)
	}
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	sender := f.user("sender")
	reader := f.user("reader")
	idle := f.user("idle")
	ref := f.group(t, sender, "Test")
	f.join(t, ref, reader, idle)

	msgID := f.send(t, sender, ref, "oops")
	if err := f.messages.MarkRead(f.ctx, reader, msgID); err != nil {
		t.Fatal(err)
	}

	assertIs(t, f.messages.DeleteMessage(f.ctx, reader, msgID), parley_errors.ErrForbidden)

	f.events.Reset()
	if err := f.messages.DeleteMessage(f.ctx, sender, msgID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := f.count(t, ref, idle); got != 0 {
		t.Errorf("unread member counter = %d, want 0", got)
	}
	if got := f.count(t, ref, reader); got != 0 {
		t.Errorf("reader counter = %d, want 0", got)
	}

	var decrements []int64
	for _, p := range f.events.Named(events.EventChatUpdated) {
		cu := p.Event.Data.(events.ChatUpdated)
		if cu.Event == events.ChatNotification {
			decrements = append(decrements, cu.UserID)
		}
	}
	if len(decrements) != 1 || decrements[0] != idle {
		t.Errorf("decrement notifications went to %v, want [%d]", decrements, idle)
	}

	// deleted is terminal
	assertIs(t, f.messages.DeleteMessage(f.ctx, sender, msgID), parley_errors.ErrNotFound)
	_, err := f.messages.EditMessage(f.ctx, sender, msgID, "again")
	assertIs(t, err, parley_errors.ErrNotFound)
	assertIs(t, f.messages.MarkRead(f.ctx, idle, msgID), parley_errors.ErrNotFound)
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	sender := f.user("sender")
	other := f.user("other")
	ref := f.group(t, sender, "Test")
	f.join(t, ref, other)
	msgID := f.send(t, sender, ref, "draft")

	_, err := f.messages.EditMessage(f.ctx, other, msgID, "hijack")
	assertIs(t, err, parley_errors.ErrForbidden)
	_, err = f.messages.EditMessage(f.ctx, sender, msgID, "")
	assertIs(t, err, parley_errors.ErrInvalidInput)

	for _, content := range []string{"final", "really final"} {
		edited, err := f.messages.EditMessage(f.ctx, sender, msgID, content)
		if err != nil {
			t.Fatalf("edit: %v", err)
		}
		if !edited.IsEdited || edited.Content != content {
			t.Errorf("edited = %+v", edited)
		}
	}

	edits := 0
	for _, p := range f.events.Named(events.EventChatUpdated) {
		if p.Event.Data.(events.ChatUpdated).Event == events.ChatMessageEdit {
			edits++
		}
	}
	if edits != 2 {
		t.Errorf("message-edit events = %d, want 2", edits)
	}
}

func TestFetchMessages(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	ref := f.group(t, owner, "Test")
	other := f.group(t, owner, "Other")
	foreign := f.send(t, owner, other, "elsewhere")

	var ids []int64
	for _, c := range []string{"1", "2", "3", "4", "5"} {
		ids = append(ids, f.send(t, owner, ref, c))
	}

	page, err := f.messages.FetchMessages(f.ctx, owner, ref, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Fatalf("first page = %v", messageIDs(page))
	}

	page, err = f.messages.FetchMessages(f.ctx, owner, ref, page[1].ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Fatalf("second page = %v", messageIDs(page))
	}

	page, err = f.messages.FetchMessages(f.ctx, owner, ref, ids[0], 2)
	if err != nil {
		t.Fatal(err)
	}
	if page == nil || len(page) != 0 {
		t.Fatalf("expected empty non-nil page, got %v", page)
	}

	page, err = f.messages.FetchMessages(f.ctx, owner, ref, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 5 {
		t.Errorf("default page has %d messages, want 5", len(page))
	}

	_, err = f.messages.FetchMessages(f.ctx, owner, ref, foreign, 2)
	assertIs(t, err, parley_errors.ErrNotFound)
	_, err = f.messages.FetchMessages(f.ctx, owner, ref, 12345, 2)
	assertIs(t, err, parley_errors.ErrNotFound)
	_, err = f.messages.FetchMessages(f.ctx, f.user("outsider"), ref, 0, 2)
	assertIs(t, err, parley_errors.ErrForbidden)
}

func messageIDs(page []message.Message) []int64 {
	ids := make([]int64, len(page))
	for i, m := range page {
		ids[i] = m.ID
	}
	return ids
}

func TestPreviewMessages(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	visitor := f.user("visitor")
	ref := f.group(t, owner, "Test")
	f.send(t, owner, ref, "welcome")

	msgs, err := f.messages.PreviewMessages(f.ctx, visitor, ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("preview has %d messages, want 1", len(msgs))
	}

	_, err = f.messages.PreviewMessages(f.ctx, owner, ref)
	assertIs(t, err, parley_errors.ErrConflict)

	private, err := f.convs.Create(f.ctx, owner, conversation.KindGroup, conversation.Details{Name: "secret", IsPrivate: true})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.messages.PreviewMessages(f.ctx, visitor, private.Ref())
	assertIs(t, err, parley_errors.ErrForbidden)
}

func TestAttachMedia(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	other := f.user("other")
	ref := f.group(t, owner, "Test")
	f.join(t, ref, other)
	msgID := f.send(t, owner, ref, "see attached")

	in := AttachmentInput{ObjectKey: storage.ObjectKey(owner, "photo.jpg"), ContentType: "image/jpeg", SizeBytes: 10}

	_, err := f.messages.AttachMedia(f.ctx, owner, 9999, in)
	assertIs(t, err, parley_errors.ErrConflict)
	_, err = f.messages.AttachMedia(f.ctx, other, msgID, AttachmentInput{ObjectKey: storage.ObjectKey(other, "x.jpg")})
	assertIs(t, err, parley_errors.ErrConflict)

	updated, err := f.messages.AttachMedia(f.ctx, owner, msgID, in)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(updated.Attachments) != 1 || updated.Attachments[0].ObjectKey != in.ObjectKey {
		t.Fatalf("attachments = %+v", updated.Attachments)
	}
}

func TestDirectChatMessages(t *testing.T) {
	f := newFixture(t)
	a := f.user("a")
	b := f.user("b")
	chat, err := f.chats.Create(f.ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}
	ref := chat.Ref()

	msgID := f.send(t, a, ref, "hey")
	if got := f.count(t, ref, b); got != 1 {
		t.Fatalf("b counter = %d, want 1", got)
	}
	if got := f.count(t, ref, a); got != 0 {
		t.Fatalf("a counter = %d, want 0", got)
	}

	_, err = f.messages.CreateMessage(f.ctx, f.user("c"), ref, "intrude", nil)
	assertIs(t, err, parley_errors.ErrForbidden)

	for i := 0; i < 2; i++ {
		if err := f.messages.MarkRead(f.ctx, b, msgID); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.count(t, ref, b); got != 0 {
		t.Fatalf("b counter after read = %d, want 0", got)
	}

	unread := f.send(t, a, ref, "still there?")
	if err := f.messages.DeleteMessage(f.ctx, a, unread); err != nil {
		t.Fatal(err)
	}
	if got := f.count(t, ref, b); got != 0 {
		t.Fatalf("b counter after deleting unread message = %d, want 0", got)
	}
}

func TestConcurrentSendAndReadKeepCounters(t *testing.T) {
	f := newFixture(t)
	sender := f.user("sender")
	reader := f.user("reader")
	writer := f.user("writer")
	ref := f.group(t, sender, "Test")
	f.join(t, ref, reader, writer)

	const (
		before    = 10
		fromOwner = 15
		fromOther = 12
	)
	var earlier []int64
	for i := 0; i < before; i++ {
		earlier = append(earlier, f.send(t, sender, ref, "before"))
	}

	var wg sync.WaitGroup
	errs := make(chan error, before*2+fromOwner+fromOther)
	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errs <- err
			}
		}()
	}
	for _, id := range earlier {
		id := id
		// every earlier message is read twice at once
		run(func() error { return f.messages.MarkRead(f.ctx, reader, id) })
		run(func() error { return f.messages.MarkRead(f.ctx, reader, id) })
	}
	for i := 0; i < fromOwner; i++ {
		run(func() error {
			_, err := f.messages.CreateMessage(f.ctx, sender, ref, "during", nil)
			return err
		})
	}
	for i := 0; i < fromOther; i++ {
		run(func() error {
			_, err := f.messages.CreateMessage(f.ctx, writer, ref, "during", nil)
			return err
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	tests := []struct {
		name   string
		userID int64
		want   int
	}{
		{"reader read everything earlier", reader, fromOwner + fromOther},
		{"writer read nothing", writer, before + fromOwner},
		{"sender counts only the writer", sender, fromOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.count(t, ref, tt.userID); got != tt.want {
				t.Errorf("counter = %d, want %d", got, tt.want)
			}
		})
	}
}
