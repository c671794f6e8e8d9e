package services

import (
	"context"
	"errors"
	"fmt"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"
	"parley-chat/internal/events"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"
)

// DirectChatService manages one-to-one chats. They have no roles; both participants may do everything.
type DirectChatService struct {
	store     repository.Store
	publisher events.Publisher
}

func NewDirectChatService(store repository.Store, publisher events.Publisher) *DirectChatService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &DirectChatService{store: store, publisher: publisher}
}

func (s *DirectChatService) announce(ctx context.Context, chat conversation.DirectChat, action string) {
	for _, userID := range chat.Participants() {
		s.publisher.BroadcastToUser(ctx, userID, events.NewChangeMember(events.ChangeMember{
			Type:   conversation.KindChat,
			SmthID: chat.ID,
			UserID: chat.Other(userID),
			Action: action,
			Chat:   chat,
		}))
	}
}

func (s *DirectChatService) Create(ctx context.Context, userID, otherID int64) (conversation.DirectChat, error) {
	if userID == otherID {
		return conversation.DirectChat{}, fmt.Errorf("%w: cannot open a chat with yourself", parley_errors.ErrInvalidInput)
	}

	var chat conversation.DirectChat
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		exists, err := r.Users.Exists(ctx, otherID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %d: %w", otherID, parley_errors.ErrNotFound)
		}

		_, err = r.Conversations.FindDirectChat(ctx, userID, otherID)
		if err == nil {
			return fmt.Errorf("%w: chat between %d and %d already exists", parley_errors.ErrConflict, userID, otherID)
		}
		if !errors.Is(err, parley_errors.ErrNotFound) {
			return err
		}

		chat = conversation.DirectChat{User1ID: userID, User2ID: otherID}
		if err := r.Conversations.CreateDirectChat(ctx, &chat); err != nil {
			return conflictOn(err, "chat between %d and %d already exists", userID, otherID)
		}
		for _, participant := range chat.Participants() {
			counter := membership.NewCounter(chat.Ref(), participant)
			if err := r.Counters.Create(ctx, &counter); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return conversation.DirectChat{}, err
	}

	s.announce(ctx, chat, events.ActionAdd)
	return chat, nil
}

func (s *DirectChatService) Get(ctx context.Context, userID, chatID int64) (conversation.DirectChat, error) {
	return requireParticipant(ctx, s.store.Repos(), userID, chatID)
}

func (s *DirectChatService) Delete(ctx context.Context, userID, chatID int64) error {
	var chat conversation.DirectChat
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		var err error
		chat, err = requireParticipant(ctx, r, userID, chatID)
		if err != nil {
			return err
		}
		if err := r.Counters.DeleteByConversation(ctx, chat.Ref()); err != nil {
			return err
		}
		return r.Conversations.DeleteDirectChat(ctx, chatID)
	})
	if err != nil {
		return err
	}

	s.announce(ctx, chat, events.ActionDelete)
	s.publisher.CloseConversation(ctx, chat.Ref())
	return nil
}
