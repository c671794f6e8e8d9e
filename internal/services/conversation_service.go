package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/domain/role"
	"parley-chat/internal/events"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"
)

const (
	maxConversationName = 64
	maxDescription      = 256
)

type ConversationService struct {
	store     repository.Store
	publisher events.Publisher
	cache     MemberCache
	paging    Paging
}

func NewConversationService(store repository.Store, publisher events.Publisher, cache MemberCache, paging Paging) *ConversationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ConversationService{store: store, publisher: publisher, cache: cache, paging: paging}
}

func normalizeDetails(d conversation.Details) (conversation.Details, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.Avatar = strings.TrimSpace(d.Avatar)
	if d.Name == "" || utf8.RuneCountInString(d.Name) > maxConversationName {
		return d, fmt.Errorf("%w: name must be 1-%d characters", parley_errors.ErrInvalidInput, maxConversationName)
	}
	if utf8.RuneCountInString(d.Description) > maxDescription {
		return d, fmt.Errorf("%w: description is longer than %d characters", parley_errors.ErrInvalidInput, maxDescription)
	}
	return d, nil
}

// createConversation inserts a group or channel, its two system roles and the creator as admin.
func createConversation(ctx context.Context, r repository.Repositories, creatorID int64, kind conversation.Kind, details conversation.Details) (conversation.Conversation, error) {
	conv, err := r.Conversations.Create(ctx, kind, details)
	if err != nil {
		return conversation.Conversation{}, err
	}
	adminTpl, memberTpl := role.SystemTemplates(kind)
	admin, err := r.Roles.Create(ctx, conv.Ref(), adminTpl)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if _, err := r.Roles.Create(ctx, conv.Ref(), memberTpl); err != nil {
		return conversation.Conversation{}, err
	}
	if _, err := addMember(ctx, r, conv.Ref(), creatorID, admin.ID); err != nil {
		return conversation.Conversation{}, err
	}
	return r.Conversations.Get(ctx, conv.Ref())
}

// deleteConversation removes a group or channel with its counters, memberships and roles.
// Messages, attachments and receipts go with the conversation row.
func deleteConversation(ctx context.Context, r repository.Repositories, ref conversation.Ref) error {
	if err := r.Conversations.Lock(ctx, ref); err != nil {
		return err
	}
	if err := r.Counters.DeleteByConversation(ctx, ref); err != nil {
		return err
	}
	if err := r.Memberships.DeleteByConversation(ctx, ref); err != nil {
		return err
	}
	if err := r.Roles.DeleteByConversation(ctx, ref); err != nil {
		return err
	}
	return r.Conversations.Delete(ctx, ref)
}

func (s *ConversationService) Create(ctx context.Context, creatorID int64, kind conversation.Kind, details conversation.Details) (conversation.Conversation, error) {
	if !kind.HasRoles() {
		return conversation.Conversation{}, fmt.Errorf("%w: %q is not a group or channel", parley_errors.ErrInvalidInput, kind)
	}
	details, err := normalizeDetails(details)
	if err != nil {
		return conversation.Conversation{}, err
	}

	var conv conversation.Conversation
	err = s.store.Transaction(ctx, func(r repository.Repositories) error {
		conv, err = createConversation(ctx, r, creatorID, kind, details)
		return err
	})
	if err != nil {
		return conversation.Conversation{}, err
	}

	s.publisher.BroadcastToUser(ctx, creatorID, events.NewChangeMember(events.ChangeMember{
		Type:   conv.Type,
		SmthID: conv.ID,
		UserID: creatorID,
		Action: events.ActionAdd,
		Chat:   conv,
	}))
	return conv, nil
}

func (s *ConversationService) Edit(ctx context.Context, actorID int64, ref conversation.Ref, details conversation.Details) (conversation.Conversation, error) {
	details, err := normalizeDetails(details)
	if err != nil {
		return conversation.Conversation{}, err
	}
	var conv conversation.Conversation
	err = s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.Edit); err != nil {
			return err
		}
		conv, err = r.Conversations.UpdateDetails(ctx, ref, details)
		return err
	})
	return conv, err
}

// Delete removes a group or channel. A channel takes its discussion group with it.
func (s *ConversationService) Delete(ctx context.Context, actorID int64, ref conversation.Ref) error {
	var deleted []conversation.Ref
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.Delete); err != nil {
			return err
		}
		deleted = deleted[:0]
		if ref.Kind == conversation.KindChannel {
			conv, err := r.Conversations.Get(ctx, ref)
			if err != nil {
				return err
			}
			if conv.GroupID != nil {
				if err := r.Conversations.SetDiscussion(ctx, ref.ID, nil); err != nil {
					return err
				}
				discussion := conversation.GroupRef(*conv.GroupID)
				if err := deleteConversation(ctx, r, discussion); err != nil {
					return err
				}
				deleted = append(deleted, discussion)
			}
		}
		if err := deleteConversation(ctx, r, ref); err != nil {
			return err
		}
		deleted = append(deleted, ref)
		return nil
	})
	if err != nil {
		return err
	}

	for _, d := range deleted {
		invalidateMembers(ctx, s.cache, d)
		s.publisher.BroadcastToConversation(ctx, d, events.NewDeleteChat(d))
		s.publisher.CloseConversation(ctx, d)
	}
	return nil
}

// Search lists public groups or channels whose name starts with prefix, largest first.
func (s *ConversationService) Search(ctx context.Context, kind conversation.Kind, prefix string) ([]conversation.Conversation, error) {
	if !kind.HasRoles() {
		return nil, fmt.Errorf("%w: cannot search %q", parley_errors.ErrInvalidInput, kind)
	}
	found, err := s.store.Repos().Conversations.Search(ctx, kind, strings.TrimSpace(prefix), s.paging.SearchLimit)
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []conversation.Conversation{}
	}
	return found, nil
}

// ConversationPage is a conversation as opened by one of its members.
type ConversationPage struct {
	Conversation conversation.Conversation `json:"conversation"`
	Role         role.View                 `json:"role"`
	IsMuted      bool                      `json:"isMuted"`
	Unread       int                       `json:"unread"`
	Messages     []message.Message         `json:"messages"`
}

// View returns the conversation with the caller's role, unread count and newest message page.
func (s *ConversationService) View(ctx context.Context, userID int64, ref conversation.Ref) (ConversationPage, error) {
	repos := s.store.Repos()
	m, err := requireMember(ctx, repos, userID, ref)
	if err != nil {
		return ConversationPage{}, err
	}
	conv, err := repos.Conversations.Get(ctx, ref)
	if err != nil {
		return ConversationPage{}, err
	}
	rl, err := repos.Roles.GetByID(ctx, m.RoleID)
	if err != nil {
		return ConversationPage{}, err
	}
	counter, err := repos.Counters.Get(ctx, ref, userID)
	if err != nil && !errors.Is(err, parley_errors.ErrNotFound) {
		return ConversationPage{}, err
	}
	msgs, err := repos.Messages.ListBefore(ctx, ref, nil, s.paging.MessagePageSize)
	if err != nil {
		return ConversationPage{}, err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return ConversationPage{
		Conversation: conv,
		Role:         role.NewView(rl),
		IsMuted:      m.IsMuted,
		Unread:       counter.Count,
		Messages:     msgs,
	}, nil
}

// discussionName keeps the generated name within the column size.
func discussionName(channelName string) string {
	suffix := utf8.RuneCountInString(conversation.DiscussionName(""))
	if runes := []rune(channelName); len(runes)+suffix > maxConversationName {
		channelName = string(runes[:maxConversationName-suffix])
	}
	return conversation.DiscussionName(channelName)
}

// CreateDiscussion creates the private discussion group of a channel with the caller as its admin.
func (s *ConversationService) CreateDiscussion(ctx context.Context, actorID, channelID int64) (conversation.Conversation, error) {
	ref := conversation.ChannelRef(channelID)
	var group conversation.Conversation
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.ChangeDiscussion); err != nil {
			return err
		}
		if err := r.Conversations.Lock(ctx, ref); err != nil {
			return err
		}
		channel, err := r.Conversations.Get(ctx, ref)
		if err != nil {
			return err
		}
		if channel.GroupID != nil {
			return fmt.Errorf("%w: %s already has a discussion", parley_errors.ErrConflict, ref)
		}
		group, err = createConversation(ctx, r, actorID, conversation.KindGroup, conversation.Details{
			Name:      discussionName(channel.Name),
			IsPrivate: true,
		})
		if err != nil {
			return err
		}
		return conflictOn(r.Conversations.SetDiscussion(ctx, channelID, &group.ID), "%s already has a discussion", ref)
	})
	if err != nil {
		return conversation.Conversation{}, err
	}

	s.publisher.BroadcastToUser(ctx, actorID, events.NewChangeMember(events.ChangeMember{
		Type:   group.Type,
		SmthID: group.ID,
		UserID: actorID,
		Action: events.ActionAdd,
		Chat:   group,
	}))
	return group, nil
}

func (s *ConversationService) DeleteDiscussion(ctx context.Context, actorID, channelID int64) error {
	ref := conversation.ChannelRef(channelID)
	var discussion conversation.Ref
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		if _, _, err := checkPermission(ctx, r, actorID, ref, permission.ChangeDiscussion); err != nil {
			return err
		}
		if err := r.Conversations.Lock(ctx, ref); err != nil {
			return err
		}
		channel, err := r.Conversations.Get(ctx, ref)
		if err != nil {
			return err
		}
		if channel.GroupID == nil {
			return fmt.Errorf("discussion of %s: %w", ref, parley_errors.ErrNotFound)
		}
		discussion = conversation.GroupRef(*channel.GroupID)
		if err := r.Conversations.SetDiscussion(ctx, channelID, nil); err != nil {
			return err
		}
		return deleteConversation(ctx, r, discussion)
	})
	if err != nil {
		return err
	}

	invalidateMembers(ctx, s.cache, discussion)
	s.publisher.BroadcastToConversation(ctx, discussion, events.NewDeleteChat(discussion))
	s.publisher.CloseConversation(ctx, discussion)
	return nil
}
