package repository

import (
	"context"
	"fmt"
	"strings"

	"parley-chat/internal/domain/conversation"
	parley_errors "parley-chat/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func tableFor(kind conversation.Kind) (string, error) {
	switch kind {
	case conversation.KindGroup:
		return conversation.Group{}.TableName(), nil
	case conversation.KindChannel:
		return conversation.Channel{}.TableName(), nil
	case conversation.KindChat:
		return conversation.DirectChat{}.TableName(), nil
	}
	return "", fmt.Errorf("%w: conversation type %q", parley_errors.ErrInvalidInput, kind)
}

func (r *PostgresConversationRepository) Create(ctx context.Context, kind conversation.Kind, details conversation.Details) (conversation.Conversation, error) {
	switch kind {
	case conversation.KindGroup:
		g := conversation.Group{Details: details}
		if err := r.db.WithContext(ctx).Create(&g).Error; err != nil {
			return conversation.Conversation{}, mapError(err)
		}
		return conversation.FromGroup(g), nil
	case conversation.KindChannel:
		c := conversation.Channel{Details: details}
		if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&c).Error; err != nil {
			return conversation.Conversation{}, mapError(err)
		}
		return conversation.FromChannel(c), nil
	}
	return conversation.Conversation{}, fmt.Errorf("%w: cannot create %q as a group or channel", parley_errors.ErrInvalidInput, kind)
}

func (r *PostgresConversationRepository) Get(ctx context.Context, ref conversation.Ref) (conversation.Conversation, error) {
	switch ref.Kind {
	case conversation.KindGroup:
		var g conversation.Group
		if err := r.db.WithContext(ctx).Where("id = ?", ref.ID).First(&g).Error; err != nil {
			return conversation.Conversation{}, mapError(err)
		}
		return conversation.FromGroup(g), nil
	case conversation.KindChannel:
		var c conversation.Channel
		if err := r.db.WithContext(ctx).Where("id = ?", ref.ID).First(&c).Error; err != nil {
			return conversation.Conversation{}, mapError(err)
		}
		return conversation.FromChannel(c), nil
	}
	return conversation.Conversation{}, fmt.Errorf("%w: %q is not a group or channel", parley_errors.ErrInvalidInput, ref.Kind)
}

func (r *PostgresConversationRepository) Lock(ctx context.Context, ref conversation.Ref) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	var ids []int64
	err = r.db.WithContext(ctx).
		Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", ref.ID).
		Pluck("id", &ids).Error
	if err != nil {
		return mapError(err)
	}
	if len(ids) == 0 {
		return parley_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) UpdateDetails(ctx context.Context, ref conversation.Ref, details conversation.Details) (conversation.Conversation, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return conversation.Conversation{}, err
	}
	res := r.db.WithContext(ctx).
		Table(table).
		Where("id = ?", ref.ID).
		Updates(map[string]interface{}{
			"name":        details.Name,
			"description": details.Description,
			"avatar":      details.Avatar,
			"is_private":  details.IsPrivate,
			"updated_at":  gorm.Expr("NOW()"),
		})
	if err := affected(res); err != nil {
		return conversation.Conversation{}, err
	}
	return r.Get(ctx, ref)
}

func (r *PostgresConversationRepository) Delete(ctx context.Context, ref conversation.Ref) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	return affected(r.db.WithContext(ctx).Exec("DELETE FROM "+table+" WHERE id = ?", ref.ID))
}

func (r *PostgresConversationRepository) AdjustMemberCount(ctx context.Context, ref conversation.Ref, delta int) error {
	if !ref.Kind.HasRoles() {
		return fmt.Errorf("%w: %q has no member count", parley_errors.ErrInvalidInput, ref.Kind)
	}
	table, _ := tableFor(ref.Kind)
	return affected(r.db.WithContext(ctx).
		Table(table).
		Where("id = ?", ref.ID).
		Update("qty_users", gorm.Expr("qty_users + ?", delta)))
}

func (r *PostgresConversationRepository) Search(ctx context.Context, kind conversation.Kind, prefix string, limit int) ([]conversation.Conversation, error) {
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	q := r.db.WithContext(ctx).
		Where("is_private = ? AND LOWER(name) LIKE ?", false, pattern).
		Order("qty_users DESC, id ASC").
		Limit(limit)

	switch kind {
	case conversation.KindGroup:
		var groups []conversation.Group
		if err := q.Find(&groups).Error; err != nil {
			return nil, mapError(err)
		}
		out := make([]conversation.Conversation, len(groups))
		for i, g := range groups {
			out[i] = conversation.FromGroup(g)
		}
		return out, nil
	case conversation.KindChannel:
		var channels []conversation.Channel
		if err := q.Find(&channels).Error; err != nil {
			return nil, mapError(err)
		}
		out := make([]conversation.Conversation, len(channels))
		for i, c := range channels {
			out[i] = conversation.FromChannel(c)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot search %q", parley_errors.ErrInvalidInput, kind)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *PostgresConversationRepository) SetDiscussion(ctx context.Context, channelID int64, groupID *int64) error {
	return affected(r.db.WithContext(ctx).
		Model(&conversation.Channel{}).
		Where("id = ?", channelID).
		Update("group_id", groupID))
}

func (r *PostgresConversationRepository) FindChannelByDiscussion(ctx context.Context, groupID int64) (conversation.Conversation, error) {
	var c conversation.Channel
	if err := r.db.WithContext(ctx).Where("group_id = ?", groupID).First(&c).Error; err != nil {
		return conversation.Conversation{}, mapError(err)
	}
	return conversation.FromChannel(c), nil
}

func (r *PostgresConversationRepository) CreateDirectChat(ctx context.Context, c *conversation.DirectChat) error {
	return mapError(r.db.WithContext(ctx).Create(c).Error)
}

func (r *PostgresConversationRepository) GetDirectChat(ctx context.Context, id int64) (conversation.DirectChat, error) {
	var c conversation.DirectChat
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return conversation.DirectChat{}, mapError(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) FindDirectChat(ctx context.Context, userA, userB int64) (conversation.DirectChat, error) {
	var c conversation.DirectChat
	err := r.db.WithContext(ctx).
		Where("(user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)", userA, userB, userB, userA).
		First(&c).Error
	if err != nil {
		return conversation.DirectChat{}, mapError(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) DeleteDirectChat(ctx context.Context, id int64) error {
	return affected(r.db.WithContext(ctx).Delete(&conversation.DirectChat{}, "id = ?", id))
}
