package repository

import (
	"context"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/message"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	return mapError(r.db.WithContext(ctx).Create(m).Error)
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id int64) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return message.Message{}, mapError(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) Lock(ctx context.Context, id int64) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return message.Message{}, mapError(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) UpdateContent(ctx context.Context, id int64, content string) error {
	return affected(r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":    content,
			"is_edited":  true,
			"updated_at": time.Now(),
		}))
}

func (r *PostgresMessageRepository) SetRead(ctx context.Context, id int64) error {
	return mapError(r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true).Error)
}

func (r *PostgresMessageRepository) Delete(ctx context.Context, id int64) error {
	return affected(r.db.WithContext(ctx).Delete(&message.Message{}, "id = ?", id))
}

func (r *PostgresMessageRepository) ListBefore(ctx context.Context, ref conversation.Ref, before *time.Time, limit int) ([]message.Message, error) {
	messages := []message.Message{}
	q := r.db.WithContext(ctx).
		Preload("Attachments").
		Where(message.Column(ref.Kind)+" = ?", ref.ID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, mapError(err)
	}
	return messages, nil
}

func (r *PostgresMessageRepository) AddAttachment(ctx context.Context, a *message.Attachment) error {
	return mapError(r.db.WithContext(ctx).Create(a).Error)
}

func (r *PostgresMessageRepository) InsertMemberReceipt(ctx context.Context, messageID, membershipID int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&message.MemberReceipt{MessageID: messageID, MembershipID: membershipID, ReadAt: at})
	if res.Error != nil {
		return false, mapError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *PostgresMessageRepository) InsertUserReceipt(ctx context.Context, messageID, userID int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&message.UserReceipt{MessageID: messageID, UserID: userID, ReadAt: at})
	if res.Error != nil {
		return false, mapError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *PostgresMessageRepository) HasUserReceipt(ctx context.Context, messageID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&message.UserReceipt{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&count).Error
	return count > 0, mapError(err)
}

func (r *PostgresMessageRepository) UnreadMemberIDs(ctx context.Context, m message.Message) ([]int64, error) {
	ref := m.Ref()
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("memberships AS ms").
		Where("ms.conversation_kind = ? AND ms.conversation_id = ?", ref.Kind, ref.ID).
		Where("ms.user_id <> ? AND ms.joined_at <= ?", m.SenderID, m.CreatedAt).
		Where("NOT EXISTS (SELECT 1 FROM member_receipts mr WHERE mr.message_id = ? AND mr.membership_id = ms.id)", m.ID).
		Order("ms.user_id ASC").
		Pluck("ms.user_id", &ids).Error
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}
