package memstore

import (
	"context"
	"errors"
	"testing"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/domain/user"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(r repository.Repositories) error {
		if _, err := r.Conversations.Create(ctx, conversation.KindGroup, conversation.Details{Name: "g"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.Repos().Conversations.Get(ctx, conversation.GroupRef(1)); !errors.Is(err, parley_errors.ErrNotFound) {
		t.Fatalf("expected group to be rolled back, got %v", err)
	}
}

func TestCounterAdjustRejectsUnderflow(t *testing.T) {
	ctx := context.Background()
	s := New()
	repos := s.Repos()
	ref := conversation.GroupRef(7)

	for _, uid := range []int64{1, 2} {
		c := membership.NewCounter(ref, uid)
		if err := repos.Counters.Create(ctx, &c); err != nil {
			t.Fatalf("create counter: %v", err)
		}
	}
	if err := repos.Counters.Adjust(ctx, ref, []int64{1}, 1); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	err := repos.Counters.Adjust(ctx, ref, []int64{1, 2}, -1)
	if !errors.Is(err, parley_errors.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	c, _ := repos.Counters.Get(ctx, ref, 1)
	if c.Count != 1 {
		t.Fatalf("partial adjust applied: count = %d", c.Count)
	}
}

func TestRoleDeleteRestrictedWhileAssigned(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := s.AddUser(user.User{Name: "ann"})
	repos := s.Repos()

	g, err := repos.Conversations.Create(ctx, conversation.KindGroup, conversation.Details{Name: "g"})
	if err != nil {
		t.Fatal(err)
	}
	rl, err := repos.Roles.Create(ctx, g.Ref(), role.Template{Name: "mods", Permissions: permission.NewSet(permission.Edit)})
	if err != nil {
		t.Fatal(err)
	}
	m := membership.Membership{ConversationKind: g.Type, ConversationID: g.ID, UserID: u.ID, RoleID: rl.ID}
	if err := repos.Memberships.Create(ctx, &m); err != nil {
		t.Fatal(err)
	}

	if err := repos.Roles.Delete(ctx, rl.ID); !errors.Is(err, parley_errors.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if _, err := repos.Roles.Create(ctx, g.Ref(), role.Template{Name: "mods"}); !errors.Is(err, parley_errors.ErrAlreadyExists) {
		t.Fatalf("expected duplicate role name to be rejected, got %v", err)
	}
}

func TestDirectChatUniquePerPair(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()

	first := conversation.DirectChat{User1ID: 1, User2ID: 2}
	if err := repos.Conversations.CreateDirectChat(ctx, &first); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		chat conversation.DirectChat
		want error
	}{
		{"same order", conversation.DirectChat{User1ID: 1, User2ID: 2}, parley_errors.ErrAlreadyExists},
		{"reversed", conversation.DirectChat{User1ID: 2, User2ID: 1}, parley_errors.ErrAlreadyExists},
		{"other pair", conversation.DirectChat{User1ID: 1, User2ID: 3}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := tt.chat
			err := repos.Conversations.CreateDirectChat(ctx, &chat)
			if tt.want == nil && err != nil {
				t.Fatalf("create: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
