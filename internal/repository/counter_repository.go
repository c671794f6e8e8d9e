package repository

import (
	"context"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"

	"gorm.io/gorm"
)

type PostgresCounterRepository struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &PostgresCounterRepository{db: db}
}

func (r *PostgresCounterRepository) Create(ctx context.Context, c *membership.NotificationCounter) error {
	return mapError(r.db.WithContext(ctx).Create(c).Error)
}

func (r *PostgresCounterRepository) Get(ctx context.Context, ref conversation.Ref, userID int64) (membership.NotificationCounter, error) {
	var c membership.NotificationCounter
	err := r.db.WithContext(ctx).
		Where("conversation_kind = ? AND conversation_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		First(&c).Error
	if err != nil {
		return membership.NotificationCounter{}, mapError(err)
	}
	return c, nil
}

// Adjust is a single UPDATE count = count + delta; the count >= 0 check rejects underflow.
func (r *PostgresCounterRepository) Adjust(ctx context.Context, ref conversation.Ref, userIDs []int64, delta int) error {
	if len(userIDs) == 0 || delta == 0 {
		return nil
	}
	return mapError(r.db.WithContext(ctx).
		Model(&membership.NotificationCounter{}).
		Where("conversation_kind = ? AND conversation_id = ? AND user_id IN ?", ref.Kind, ref.ID, userIDs).
		Update("count", gorm.Expr("count + ?", delta)).Error)
}

func (r *PostgresCounterRepository) Delete(ctx context.Context, ref conversation.Ref, userID int64) error {
	return mapError(r.db.WithContext(ctx).
		Where("conversation_kind = ? AND conversation_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		Delete(&membership.NotificationCounter{}).Error)
}

func (r *PostgresCounterRepository) DeleteByConversation(ctx context.Context, ref conversation.Ref) error {
	return mapError(r.db.WithContext(ctx).
		Where("conversation_kind = ? AND conversation_id = ?", ref.Kind, ref.ID).
		Delete(&membership.NotificationCounter{}).Error)
}
