package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/events"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"
)

const maxRoleNameLength = 64

type PermissionService struct {
	store     repository.Store
	publisher events.Publisher
	cache     MemberCache
}

func NewPermissionService(store repository.Store, publisher events.Publisher, cache MemberCache) *PermissionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PermissionService{store: store, publisher: publisher, cache: cache}
}

// RoleInput describes a role to create, or the replacement values of an edited role.
type RoleInput struct {
	Name        string
	Color       string
	Permissions []string
}

func (in RoleInput) normalize() (RoleInput, permission.Set, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	if in.Name == "" || utf8.RuneCountInString(in.Name) > maxRoleNameLength {
		return in, 0, fmt.Errorf("%w: role name must be 1-%d characters", parley_errors.ErrInvalidInput, maxRoleNameLength)
	}
	set, err := permission.ParseSet(in.Permissions)
	if err != nil {
		return in, 0, err
	}
	return in, set, nil
}

// CheckPermission succeeds when userID is a member of ref whose role grants p.
func (s *PermissionService) CheckPermission(ctx context.Context, userID int64, ref conversation.Ref, p permission.Permission) error {
	_, _, err := checkPermission(ctx, s.store.Repos(), userID, ref, p)
	return err
}

func (s *PermissionService) ListPermissions() []permission.Permission {
	return permission.Catalog()
}

func (s *PermissionService) ListRoles(ctx context.Context, userID int64, ref conversation.Ref) ([]role.View, error) {
	repos := s.store.Repos()
	if _, err := requireMember(ctx, repos, userID, ref); err != nil {
		return nil, err
	}
	roles, err := repos.Roles.List(ctx, ref)
	if err != nil {
		return nil, err
	}
	views := make([]role.View, len(roles))
	for i, rl := range roles {
		views[i] = role.NewView(rl)
	}
	return views, nil
}

func (s *PermissionService) CreateRole(ctx context.Context, actorID int64, ref conversation.Ref, in RoleInput) (role.View, error) {
	in, grants, err := in.normalize()
	if err != nil {
		return role.View{}, err
	}

	var created role.Role
	err = s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.ChangeRole); err != nil {
			return err
		}
		created, err = r.Roles.Create(ctx, ref, role.Template{Name: in.Name, Color: in.Color, Permissions: grants})
		return conflictOn(err, "role %q already exists in %s", in.Name, ref)
	})
	if err != nil {
		return role.View{}, err
	}

	view := role.NewView(created)
	s.publisher.BroadcastToConversation(ctx, ref, events.NewCreateRole(events.CreateRole{
		Type:         ref.Kind,
		SmthID:       ref.ID,
		Name:         view.Name,
		Permissions:  view.Grants,
		Color:        view.Color,
		IsSystemRole: view.IsSystem,
	}))
	return view, nil
}

// lockRole resolves a role by name and holds its row lock until the transaction ends.
func lockRole(ctx context.Context, r repository.Repositories, ref conversation.Ref, name string) (role.Role, error) {
	rl, err := r.Roles.GetByName(ctx, ref, name)
	if err != nil {
		return role.Role{}, err
	}
	return r.Roles.Lock(ctx, rl.ID)
}

// editableRole locks a role by name and rejects the system roles.
func editableRole(ctx context.Context, r repository.Repositories, ref conversation.Ref, name string) (role.Role, error) {
	rl, err := lockRole(ctx, r, ref, name)
	if err != nil {
		return role.Role{}, err
	}
	if rl.IsSystem {
		return role.Role{}, fmt.Errorf("%w: system role %q cannot be changed", parley_errors.ErrInvariantViolation, rl.Name)
	}
	return rl, nil
}

// EditRole renames, recolors and replaces the whole grant set of a role in one transaction.
func (s *PermissionService) EditRole(ctx context.Context, actorID int64, ref conversation.Ref, roleName string, in RoleInput) (role.View, error) {
	in, grants, err := in.normalize()
	if err != nil {
		return role.View{}, err
	}

	var updated role.Role
	err = s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.ChangeRole); err != nil {
			return err
		}
		rl, err := editableRole(ctx, r, ref, roleName)
		if err != nil {
			return err
		}
		if err := r.Roles.DeletePermissions(ctx, rl.ID); err != nil {
			return err
		}
		if err := r.Roles.InsertPermissions(ctx, rl.ID, grants); err != nil {
			return err
		}
		if err := r.Roles.Update(ctx, rl.ID, in.Name, in.Color); err != nil {
			return conflictOn(err, "role %q already exists in %s", in.Name, ref)
		}
		updated, err = r.Roles.GetByID(ctx, rl.ID)
		return err
	})
	if err != nil {
		return role.View{}, err
	}
	invalidateMembers(ctx, s.cache, ref)
	return role.NewView(updated), nil
}

// DeleteRole moves every holder to the default role, drops the grants, then the role.
func (s *PermissionService) DeleteRole(ctx context.Context, actorID int64, ref conversation.Ref, roleName string) error {
	var (
		holders  []int64
		fallback role.Role
	)
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.ChangeRole); err != nil {
			return err
		}
		rl, err := editableRole(ctx, r, ref, roleName)
		if err != nil {
			return err
		}
		fallback, err = r.Roles.GetDefault(ctx, ref)
		if err != nil {
			return fmt.Errorf("%w: %s has no default role", parley_errors.ErrInvariantViolation, ref)
		}

		members, err := r.Memberships.List(ctx, ref)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.RoleID == rl.ID {
				holders = append(holders, m.UserID)
			}
		}

		if _, err := r.Memberships.ReassignRole(ctx, rl.ID, fallback.ID); err != nil {
			return err
		}
		if err := r.Roles.DeletePermissions(ctx, rl.ID); err != nil {
			return err
		}
		return r.Roles.Delete(ctx, rl.ID)
	})
	if err != nil {
		return err
	}

	invalidateMembers(ctx, s.cache, ref)
	for _, userID := range holders {
		s.publisher.BroadcastToConversation(ctx, ref, events.NewAssignRole(ref, userID, fallback.Name))
	}
	return nil
}

func (s *PermissionService) AssignRole(ctx context.Context, actorID int64, ref conversation.Ref, targetUserID int64, roleName string) error {
	var assigned role.Role
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.ChangeRole); err != nil {
			return err
		}
		if _, err := r.Memberships.Get(ctx, ref, targetUserID); err != nil {
			return fmt.Errorf("user %d in %s: %w", targetUserID, ref, err)
		}
		var err error
		assigned, err = lockRole(ctx, r, ref, roleName)
		if err != nil {
			return fmt.Errorf("role %q: %w", roleName, err)
		}
		return r.Memberships.SetRole(ctx, ref, targetUserID, assigned.ID)
	})
	if err != nil {
		return err
	}

	invalidateMembers(ctx, s.cache, ref)
	s.publisher.BroadcastToConversation(ctx, ref, events.NewAssignRole(ref, targetUserID, assigned.Name))
	return nil
}

// RemoveRole resets the target to the default role.
func (s *PermissionService) RemoveRole(ctx context.Context, actorID int64, ref conversation.Ref, targetUserID int64) error {
	var fallback role.Role
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.ChangeRole); err != nil {
			return err
		}
		if _, err := r.Memberships.Get(ctx, ref, targetUserID); err != nil {
			return fmt.Errorf("user %d in %s: %w", targetUserID, ref, err)
		}
		var err error
		fallback, err = r.Roles.GetDefault(ctx, ref)
		if err != nil {
			return err
		}
		return r.Memberships.SetRole(ctx, ref, targetUserID, fallback.ID)
	})
	if err != nil {
		return err
	}

	invalidateMembers(ctx, s.cache, ref)
	s.publisher.BroadcastToConversation(ctx, ref, events.NewAssignRole(ref, targetUserID, fallback.Name))
	return nil
}
