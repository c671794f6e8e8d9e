package services

import (
	"context"
	"errors"
	"fmt"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"
)

func requireRoles(ref conversation.Ref) error {
	if !ref.Valid() || !ref.Kind.HasRoles() {
		return fmt.Errorf("%w: %s is not a group or channel", parley_errors.ErrInvalidInput, ref)
	}
	return nil
}

// requireMember resolves the caller's membership. A missing conversation is ErrNotFound,
// a missing membership ErrUnauthorized.
func requireMember(ctx context.Context, r repository.Repositories, userID int64, ref conversation.Ref) (membership.Membership, error) {
	if err := requireRoles(ref); err != nil {
		return membership.Membership{}, err
	}
	m, err := r.Memberships.Get(ctx, ref, userID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, parley_errors.ErrNotFound) {
		return membership.Membership{}, err
	}
	if _, err := r.Conversations.Get(ctx, ref); err != nil {
		return membership.Membership{}, err
	}
	return membership.Membership{}, fmt.Errorf("%w: user %d is not a member of %s", parley_errors.ErrUnauthorized, userID, ref)
}

// checkPermission tests the caller's role for p and returns the membership and role it resolved.
func checkPermission(ctx context.Context, r repository.Repositories, userID int64, ref conversation.Ref, p permission.Permission) (membership.Membership, role.Role, error) {
	m, err := requireMember(ctx, r, userID, ref)
	if err != nil {
		return membership.Membership{}, role.Role{}, err
	}
	rl, err := r.Roles.GetByID(ctx, m.RoleID)
	if err != nil {
		return membership.Membership{}, role.Role{}, err
	}
	if !rl.Grants().Has(p) {
		return membership.Membership{}, role.Role{}, fmt.Errorf("%w: role %q lacks %s in %s", parley_errors.ErrForbidden, rl.Name, p, ref)
	}
	return m, rl, nil
}

// requireParticipant loads a direct chat the caller takes part in.
func requireParticipant(ctx context.Context, r repository.Repositories, userID, chatID int64) (conversation.DirectChat, error) {
	chat, err := r.Conversations.GetDirectChat(ctx, chatID)
	if err != nil {
		return conversation.DirectChat{}, err
	}
	if !chat.HasParticipant(userID) {
		return conversation.DirectChat{}, fmt.Errorf("%w: user %d is not a participant of %s", parley_errors.ErrForbidden, userID, chat.Ref())
	}
	return chat, nil
}

// conflictOn turns a storage duplicate into ErrConflict with a readable message.
func conflictOn(err error, format string, args ...interface{}) error {
	if errors.Is(err, parley_errors.ErrAlreadyExists) {
		return fmt.Errorf("%w: "+format, append([]interface{}{parley_errors.ErrConflict}, args...)...)
	}
	return err
}
