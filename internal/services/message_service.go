package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/events"
	"parley-chat/internal/repository"
	"parley-chat/internal/storage"
	parley_errors "parley-chat/pkg/errors"
)

const maxMessageLength = 4096

// URLResolver turns an uploaded object key into its download URL.
type URLResolver interface {
	PublicURL(key string) string
}

type MessageService struct {
	store     repository.Store
	publisher events.Publisher
	urls      URLResolver
	paging    Paging
}

func NewMessageService(store repository.Store, publisher events.Publisher, urls URLResolver, paging Paging) *MessageService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &MessageService{store: store, publisher: publisher, urls: urls, paging: paging}
}

type AttachmentInput struct {
	ObjectKey   string
	ContentType string
	SizeBytes   int64
}

func (s *MessageService) attachment(uploaderID int64, in AttachmentInput) (message.Attachment, error) {
	key := strings.TrimSpace(in.ObjectKey)
	if key == "" {
		return message.Attachment{}, fmt.Errorf("%w: attachment object key is required", parley_errors.ErrInvalidInput)
	}
	if !storage.OwnsKey(uploaderID, key) {
		return message.Attachment{}, fmt.Errorf("%w: object %q was not uploaded by user %d", parley_errors.ErrForbidden, key, uploaderID)
	}
	a := message.Attachment{ObjectKey: key, ContentType: in.ContentType, SizeBytes: in.SizeBytes}
	if s.urls != nil {
		a.URL = s.urls.PublicURL(key)
	}
	return a, nil
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) > maxMessageLength {
		return "", fmt.Errorf("%w: message is longer than %d characters", parley_errors.ErrInvalidInput, maxMessageLength)
	}
	return content, nil
}

// authorizeWrite checks that userID may post in ref and returns the users whose counters a new
// message there moves.
func authorizeWrite(ctx context.Context, r repository.Repositories, userID int64, ref conversation.Ref, withMedia bool) ([]int64, error) {
	if ref.Kind == conversation.KindChat {
		chat, err := requireParticipant(ctx, r, userID, ref.ID)
		if err != nil {
			return nil, err
		}
		return []int64{chat.Other(userID)}, nil
	}

	if _, _, err := checkPermission(ctx, r, userID, ref, permission.SendMessage); err != nil {
		return nil, err
	}
	if withMedia {
		if _, _, err := checkPermission(ctx, r, userID, ref, permission.AddMedia); err != nil {
			return nil, err
		}
	}
	ids, err := r.Memberships.ListUserIDs(ctx, ref)
	if err != nil {
		return nil, err
	}
	recipients := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			recipients = append(recipients, id)
		}
	}
	return recipients, nil
}

func (s *MessageService) notify(ctx context.Context, ref conversation.Ref, userIDs []int64, direction string) {
	for _, id := range userIDs {
		s.publisher.BroadcastToUser(ctx, id, events.Notification(ref, id, direction))
	}
}

// CreateMessage posts a message and increments the counter of every other member in the same transaction.
func (s *MessageService) CreateMessage(ctx context.Context, senderID int64, ref conversation.Ref, content string, attachments []AttachmentInput) (message.Message, error) {
	if !ref.Valid() {
		return message.Message{}, fmt.Errorf("%w: invalid conversation %s", parley_errors.ErrInvalidInput, ref)
	}
	content, err := normalizeContent(content)
	if err != nil {
		return message.Message{}, err
	}
	if content == "" && len(attachments) == 0 {
		return message.Message{}, fmt.Errorf("%w: message is empty", parley_errors.ErrInvalidInput)
	}

	msg := message.New(ref, senderID, content)
	for _, in := range attachments {
		a, err := s.attachment(senderID, in)
		if err != nil {
			return message.Message{}, err
		}
		msg.Attachments = append(msg.Attachments, a)
	}

	var recipients []int64
	err = s.store.Transaction(ctx, func(r repository.Repositories) error {
		if err := r.Conversations.Lock(ctx, ref); err != nil {
			return err
		}
		var err error
		recipients, err = authorizeWrite(ctx, r, senderID, ref, len(attachments) > 0)
		if err != nil {
			return err
		}
		// taken after the lock so concurrent joins order against this message
		now := time.Now().UTC()
		msg.CreatedAt, msg.UpdatedAt = now, now
		if err := r.Messages.Create(ctx, &msg); err != nil {
			return err
		}
		return r.Counters.Adjust(ctx, ref, recipients, 1)
	})
	if err != nil {
		return message.Message{}, err
	}

	s.publisher.BroadcastToConversation(ctx, ref, events.NewChatUpdated(ref, events.ChatUpdated{
		Event:          events.ChatMessage,
		MessageID:      msg.ID,
		UserID:         senderID,
		NewMessageData: msg,
	}))
	s.notify(ctx, ref, recipients, events.Increment)
	return msg, nil
}

// lockOwned loads a message under lock and checks that userID sent it.
func lockOwned(ctx context.Context, r repository.Repositories, userID, messageID int64) (message.Message, error) {
	m, err := r.Messages.Lock(ctx, messageID)
	if err != nil {
		return message.Message{}, fmt.Errorf("message %d: %w", messageID, err)
	}
	if m.SenderID != userID {
		return message.Message{}, fmt.Errorf("%w: message %d belongs to another user", parley_errors.ErrForbidden, messageID)
	}
	return m, nil
}

func (s *MessageService) EditMessage(ctx context.Context, userID, messageID int64, content string) (message.Message, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return message.Message{}, err
	}

	var edited message.Message
	err = s.store.Transaction(ctx, func(r repository.Repositories) error {
		m, err := lockOwned(ctx, r, userID, messageID)
		if err != nil {
			return err
		}
		if err := message.ValidateTransition(m.State(), message.StateEdited); err != nil {
			return err
		}
		if content == "" {
			full, err := r.Messages.GetByID(ctx, messageID)
			if err != nil {
				return err
			}
			if len(full.Attachments) == 0 {
				return fmt.Errorf("%w: message is empty", parley_errors.ErrInvalidInput)
			}
		}
		if err := r.Messages.UpdateContent(ctx, messageID, content); err != nil {
			return err
		}
		edited, err = r.Messages.GetByID(ctx, messageID)
		return err
	})
	if err != nil {
		return message.Message{}, err
	}

	ref := edited.Ref()
	s.publisher.BroadcastToConversation(ctx, ref, events.NewChatUpdated(ref, events.ChatUpdated{
		Event:          events.ChatMessageEdit,
		MessageID:      edited.ID,
		UserID:         userID,
		NewContent:     edited.Content,
		NewMessageData: edited,
	}))
	return edited, nil
}

// unreadBy lists the users still counting m as unread.
func unreadBy(ctx context.Context, r repository.Repositories, m message.Message) ([]int64, error) {
	ref := m.Ref()
	if ref.Kind != conversation.KindChat {
		return r.Messages.UnreadMemberIDs(ctx, m)
	}
	chat, err := r.Conversations.GetDirectChat(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	other := chat.Other(m.SenderID)
	read, err := r.Messages.HasUserReceipt(ctx, m.ID, other)
	if err != nil || read {
		return nil, err
	}
	return []int64{other}, nil
}

// DeleteMessage removes a message, first taking it back from the counters of members who never read it.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, messageID int64) error {
	var (
		ref    conversation.Ref
		unread []int64
	)
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		m, err := lockOwned(ctx, r, userID, messageID)
		if err != nil {
			return err
		}
		if err := message.ValidateTransition(m.State(), message.StateDeleted); err != nil {
			return err
		}
		ref = m.Ref()
		if unread, err = unreadBy(ctx, r, m); err != nil {
			return err
		}
		if err := r.Counters.Adjust(ctx, ref, unread, -1); err != nil {
			return err
		}
		return r.Messages.Delete(ctx, messageID)
	})
	if err != nil {
		return err
	}

	s.publisher.BroadcastToConversation(ctx, ref, events.NewChatUpdated(ref, events.ChatUpdated{
		Event:     events.ChatMessageDelete,
		MessageID: messageID,
		UserID:    userID,
	}))
	s.notify(ctx, ref, unread, events.Decrement)
	return nil
}

// MarkRead records that userID read the message. Repeated calls change nothing.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID int64) error {
	var (
		ref      conversation.Ref
		inserted bool
		counted  bool
	)
	err := s.store.Transaction(ctx, func(r repository.Repositories) error {
		m, err := r.Messages.Lock(ctx, messageID)
		if err != nil {
			return fmt.Errorf("message %d: %w", messageID, err)
		}
		if m.SenderID == userID {
			return fmt.Errorf("%w: cannot mark your own message as read", parley_errors.ErrConflict)
		}
		ref = m.Ref()
		now := time.Now().UTC()

		if ref.Kind == conversation.KindChat {
			chat, err := r.Conversations.GetDirectChat(ctx, ref.ID)
			if err != nil {
				return err
			}
			if !chat.HasParticipant(userID) {
				return fmt.Errorf("%w: user %d is not a participant of %s", parley_errors.ErrUnauthorized, userID, ref)
			}
			if inserted, err = r.Messages.InsertUserReceipt(ctx, messageID, userID, now); err != nil {
				return err
			}
			counted = true
		} else {
			ms, err := requireMember(ctx, r, userID, ref)
			if err != nil {
				return err
			}
			if inserted, err = r.Messages.InsertMemberReceipt(ctx, messageID, ms.ID, now); err != nil {
				return err
			}
			// members who joined after the message were never counted for it
			counted = !ms.JoinedAt.After(m.CreatedAt)
		}

		if !inserted {
			return nil
		}
		if counted {
			if err := r.Counters.Adjust(ctx, ref, []int64{userID}, -1); err != nil {
				return err
			}
		}
		if !m.IsRead {
			return r.Messages.SetRead(ctx, messageID)
		}
		return nil
	})
	if err != nil || !inserted {
		return err
	}

	s.publisher.BroadcastToConversation(ctx, ref, events.NewChatUpdated(ref, events.ChatUpdated{
		Event:     events.ChatMessageStatus,
		MessageID: messageID,
		UserID:    userID,
	}))
	if counted {
		s.notify(ctx, ref, []int64{userID}, events.Decrement)
	}
	return nil
}

// FetchMessages pages backwards through a conversation. A zero cursor starts at the newest message.
func (s *MessageService) FetchMessages(ctx context.Context, userID int64, ref conversation.Ref, cursorID int64, pageSize int) ([]message.Message, error) {
	repos := s.store.Repos()
	if err := s.requireReader(ctx, repos, userID, ref); err != nil {
		return nil, err
	}

	var before *time.Time
	if cursorID > 0 {
		cursor, err := repos.Messages.GetByID(ctx, cursorID)
		if err != nil {
			return nil, fmt.Errorf("cursor %d: %w", cursorID, err)
		}
		if cursor.Ref() != ref {
			return nil, fmt.Errorf("cursor %d in %s: %w", cursorID, ref, parley_errors.ErrNotFound)
		}
		before = &cursor.CreatedAt
	}

	msgs, err := repos.Messages.ListBefore(ctx, ref, before, s.paging.pageSize(pageSize))
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return msgs, nil
}

// requireReader maps a missing membership to ErrForbidden for message reads.
func (s *MessageService) requireReader(ctx context.Context, r repository.Repositories, userID int64, ref conversation.Ref) error {
	if ref.Kind == conversation.KindChat {
		_, err := requireParticipant(ctx, r, userID, ref.ID)
		return err
	}
	_, err := requireMember(ctx, r, userID, ref)
	if errors.Is(err, parley_errors.ErrUnauthorized) {
		return fmt.Errorf("%w: user %d is not a member of %s", parley_errors.ErrForbidden, userID, ref)
	}
	return err
}

// PreviewMessages shows the newest messages of a public group or channel to someone who has not joined.
func (s *MessageService) PreviewMessages(ctx context.Context, userID int64, ref conversation.Ref) ([]message.Message, error) {
	if err := requireRoles(ref); err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	conv, err := repos.Conversations.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	_, err = repos.Memberships.Get(ctx, ref, userID)
	if err == nil {
		return nil, fmt.Errorf("%w: user %d is already a member of %s", parley_errors.ErrConflict, userID, ref)
	}
	if !errors.Is(err, parley_errors.ErrNotFound) {
		return nil, err
	}
	if conv.IsPrivate {
		return nil, fmt.Errorf("%w: %s is private", parley_errors.ErrForbidden, ref)
	}

	msgs, err := repos.Messages.ListBefore(ctx, ref, nil, s.paging.PreviewPageSize)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return msgs, nil
}

// AttachMedia links an uploaded object to one of the caller's messages.
func (s *MessageService) AttachMedia(ctx context.Context, userID, messageID int64, in AttachmentInput) (message.Message, error) {
	a, err := s.attachment(userID, in)
	if err != nil {
		return message.Message{}, err
	}

	var updated message.Message
	err = s.store.Transaction(ctx, func(r repository.Repositories) error {
		m, err := r.Messages.Lock(ctx, messageID)
		if errors.Is(err, parley_errors.ErrNotFound) {
			return fmt.Errorf("%w: message %d does not exist", parley_errors.ErrConflict, messageID)
		}
		if err != nil {
			return err
		}
		if m.SenderID != userID {
			return fmt.Errorf("%w: message %d belongs to another user", parley_errors.ErrConflict, messageID)
		}
		ref := m.Ref()
		if ref.Kind == conversation.KindChat {
			if _, err := requireParticipant(ctx, r, userID, ref.ID); err != nil {
				return err
			}
		} else if _, _, err := checkPermission(ctx, r, userID, ref, permission.AddMedia); err != nil {
			return err
		}

		a.MessageID = messageID
		if err := r.Messages.AddAttachment(ctx, &a); err != nil {
			return err
		}
		updated, err = r.Messages.GetByID(ctx, messageID)
		return err
	})
	if err != nil {
		return message.Message{}, err
	}

	ref := updated.Ref()
	s.publisher.BroadcastToConversation(ctx, ref, events.NewChatUpdated(ref, events.ChatUpdated{
		Event:          events.ChatMessageEdit,
		MessageID:      updated.ID,
		UserID:         userID,
		NewContent:     updated.Content,
		NewMessageData: updated,
	}))
	return updated, nil
}
