package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/domain/user"
	"parley-chat/internal/events"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"
	"parley-chat/pkg/logger"

	"go.uber.org/zap"
)

// MemberCache caches member lists per conversation. Implemented by internal/redis.MemberCache.
type MemberCache interface {
	GetMembers(ctx context.Context, ref conversation.Ref) ([]membership.Member, error)
	SetMembers(ctx context.Context, ref conversation.Ref, members []membership.Member) error
	Invalidate(ctx context.Context, ref conversation.Ref) error
}

func invalidateMembers(ctx context.Context, cache MemberCache, ref conversation.Ref) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, ref); err != nil {
		logger.GetGlobalLogger().WithContext(ctx).Warn("member cache invalidate failed",
			zap.String("conversation", ref.String()), zap.Error(err))
	}
}

type MembershipService struct {
	store     repository.Store
	publisher events.Publisher
	cache     MemberCache
}

func NewMembershipService(store repository.Store, publisher events.Publisher, cache MemberCache) *MembershipService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &MembershipService{store: store, publisher: publisher, cache: cache}
}

// addMember inserts a membership with its zeroed counter and bumps qty_users. The caller
// holds the transaction; the conversation row is locked here.
func addMember(ctx context.Context, r repository.Repositories, ref conversation.Ref, userID, roleID int64) (membership.Membership, error) {
	if err := r.Conversations.Lock(ctx, ref); err != nil {
		return membership.Membership{}, err
	}
	exists, err := r.Users.Exists(ctx, userID)
	if err != nil {
		return membership.Membership{}, err
	}
	if !exists {
		return membership.Membership{}, fmt.Errorf("user %d: %w", userID, parley_errors.ErrNotFound)
	}

	m := membership.Membership{
		ConversationKind: ref.Kind,
		ConversationID:   ref.ID,
		UserID:           userID,
		RoleID:           roleID,
		JoinedAt:         time.Now().UTC(),
	}
	if err := r.Memberships.Create(ctx, &m); err != nil {
		return membership.Membership{}, conflictOn(err, "user %d is already a member of %s", userID, ref)
	}
	counter := membership.NewCounter(ref, userID)
	if err := r.Counters.Create(ctx, &counter); err != nil {
		return membership.Membership{}, conflictOn(err, "user %d already has a counter in %s", userID, ref)
	}
	if err := r.Conversations.AdjustMemberCount(ctx, ref, 1); err != nil {
		return membership.Membership{}, err
	}
	return m, nil
}

func removeMember(ctx context.Context, r repository.Repositories, ref conversation.Ref, userID int64) error {
	if err := r.Conversations.Lock(ctx, ref); err != nil {
		return err
	}
	if err := r.Memberships.Delete(ctx, ref, userID); err != nil {
		return fmt.Errorf("user %d in %s: %w", userID, ref, err)
	}
	if err := r.Counters.Delete(ctx, ref, userID); err != nil && !errors.Is(err, parley_errors.ErrNotFound) {
		return err
	}
	return r.Conversations.AdjustMemberCount(ctx, ref, -1)
}

// joinWithDefaultRole adds userID with the conversation's default role and returns what the
// change-member events need.
func (s *MembershipService) joinWithDefaultRole(ctx context.Context, ref conversation.Ref, userID int64, authorize func(r repository.Repositories) error) (user.User, conversation.Conversation, error) {
	var (
		target user.User
		conv   conversation.Conversation
	)
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		if err := authorize(r); err != nil {
			return err
		}
		def, err := r.Roles.GetDefault(ctx, ref)
		if err != nil {
			return err
		}
		if _, err := addMember(ctx, r, ref, userID, def.ID); err != nil {
			return err
		}
		if target, err = r.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		conv, err = r.Conversations.Get(ctx, ref)
		return err
	})
	return target, conv, err
}

func (s *MembershipService) announce(ctx context.Context, ref conversation.Ref, userID int64, action string, data, chat interface{}) {
	invalidateMembers(ctx, s.cache, ref)
	e := events.NewChangeMember(events.ChangeMember{
		Type:   ref.Kind,
		SmthID: ref.ID,
		UserID: userID,
		Action: action,
		Data:   data,
		Chat:   chat,
	})
	s.publisher.BroadcastToConversation(ctx, ref, e)
	s.publisher.BroadcastToUser(ctx, userID, e)
}

// AddMember adds targetUserID with the default role on behalf of actorID.
func (s *MembershipService) AddMember(ctx context.Context, actorID int64, ref conversation.Ref, targetUserID int64) error {
	target, conv, err := s.joinWithDefaultRole(ctx, ref, targetUserID, func(r repository.Repositories) error {
		_, _, err := checkPermission(ctx, r, actorID, ref, permission.AddMember)
		return err
	})
	if err != nil {
		return err
	}
	s.announce(ctx, ref, targetUserID, events.ActionAdd, target, conv)
	return nil
}

// Join lets a user enter a public conversation, or the discussion group of a channel it belongs to.
func (s *MembershipService) Join(ctx context.Context, ref conversation.Ref, userID int64) error {
	target, conv, err := s.joinWithDefaultRole(ctx, ref, userID, func(r repository.Repositories) error {
		if err := requireRoles(ref); err != nil {
			return err
		}
		conv, err := r.Conversations.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !conv.IsPrivate {
			return nil
		}
		if ref.Kind == conversation.KindGroup {
			channel, err := r.Conversations.FindChannelByDiscussion(ctx, ref.ID)
			if err == nil {
				if _, err := r.Memberships.Get(ctx, channel.Ref(), userID); err == nil {
					return nil
				}
			} else if !errors.Is(err, parley_errors.ErrNotFound) {
				return err
			}
		}
		return fmt.Errorf("%w: %s is private", parley_errors.ErrForbidden, ref)
	})
	if err != nil {
		return err
	}
	s.announce(ctx, ref, userID, events.ActionAdd, target, conv)
	return nil
}

// RemoveMember removes targetUserID. Leaving is always allowed; removing someone else needs removeMember.
func (s *MembershipService) RemoveMember(ctx context.Context, actorID int64, ref conversation.Ref, targetUserID int64) error {
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		if actorID == targetUserID {
			if _, err := requireMember(ctx, r, actorID, ref); err != nil {
				return err
			}
		} else if _, _, err := checkPermission(ctx, r, actorID, ref, permission.RemoveMember); err != nil {
			return err
		}
		return removeMember(ctx, r, ref, targetUserID)
	})
	if err != nil {
		return err
	}
	s.announce(ctx, ref, targetUserID, events.ActionDelete, nil, nil)
	s.publisher.LeaveConversation(ctx, ref, targetUserID)
	return nil
}

func (s *MembershipService) ChangeNotificationSetting(ctx context.Context, userID int64, ref conversation.Ref, muted bool) error {
	if err := requireRoles(ref); err != nil {
		return err
	}
	if err := s.store.Repos().Memberships.SetMuted(ctx, ref, userID, muted); err != nil {
		return fmt.Errorf("user %d in %s: %w", userID, ref, err)
	}
	invalidateMembers(ctx, s.cache, ref)
	return nil
}

func (s *MembershipService) ListMembers(ctx context.Context, userID int64, ref conversation.Ref) ([]membership.Member, error) {
	repos := s.store.Repos()
	if _, err := requireMember(ctx, repos, userID, ref); err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, err := s.cache.GetMembers(ctx, ref)
		if err != nil {
			logger.GetGlobalLogger().WithContext(ctx).Warn("member cache read failed",
				zap.String("conversation", ref.String()), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	members, err := repos.Memberships.List(ctx, ref)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []membership.Member{}
	}
	if s.cache != nil {
		if err := s.cache.SetMembers(ctx, ref, members); err != nil {
			logger.GetGlobalLogger().WithContext(ctx).Warn("member cache write failed",
				zap.String("conversation", ref.String()), zap.Error(err))
		}
	}
	return members, nil
}

// GetNotification returns the caller's unread counter for a group, channel or direct chat.
func (s *MembershipService) GetNotification(ctx context.Context, userID int64, ref conversation.Ref) (membership.NotificationCounter, error) {
	repos := s.store.Repos()
	if ref.Kind == conversation.KindChat {
		if _, err := requireParticipant(ctx, repos, userID, ref.ID); err != nil {
			return membership.NotificationCounter{}, err
		}
	} else if _, err := requireMember(ctx, repos, userID, ref); err != nil {
		return membership.NotificationCounter{}, err
	}
	return repos.Counters.Get(ctx, ref, userID)
}
