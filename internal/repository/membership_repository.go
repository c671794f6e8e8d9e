package repository

import (
	"context"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"

	"gorm.io/gorm"
)

type PostgresMembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &PostgresMembershipRepository{db: db}
}

func (r *PostgresMembershipRepository) Create(ctx context.Context, m *membership.Membership) error {
	return mapError(r.db.WithContext(ctx).Create(m).Error)
}

func (r *PostgresMembershipRepository) Get(ctx context.Context, ref conversation.Ref, userID int64) (membership.Membership, error) {
	var m membership.Membership
	err := r.db.WithContext(ctx).
		Where("conversation_kind = ? AND conversation_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		First(&m).Error
	if err != nil {
		return membership.Membership{}, mapError(err)
	}
	return m, nil
}

func (r *PostgresMembershipRepository) Delete(ctx context.Context, ref conversation.Ref, userID int64) error {
	return affected(r.db.WithContext(ctx).
		Where("conversation_kind = ? AND conversation_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		Delete(&membership.Membership{}))
}

func (r *PostgresMembershipRepository) DeleteByConversation(ctx context.Context, ref conversation.Ref) error {
	return mapError(r.db.WithContext(ctx).
		Where("conversation_kind = ? AND conversation_id = ?", ref.Kind, ref.ID).
		Delete(&membership.Membership{}).Error)
}

func (r *PostgresMembershipRepository) List(ctx context.Context, ref conversation.Ref) ([]membership.Member, error) {
	var members []membership.Member
	err := r.db.WithContext(ctx).
		Table("memberships m").
		Select(`m.id, m.user_id, u.name AS user_name, m.role_id, ro.name AS role_name,
			ro.color AS role_color, m.is_muted, m.joined_at`).
		Joins("JOIN users u ON u.id = m.user_id").
		Joins("JOIN roles ro ON ro.id = m.role_id").
		Where("m.conversation_kind = ? AND m.conversation_id = ?", ref.Kind, ref.ID).
		Order("m.joined_at ASC, m.id ASC").
		Scan(&members).Error
	if err != nil {
		return nil, mapError(err)
	}
	return members, nil
}

func (r *PostgresMembershipRepository) ListUserIDs(ctx context.Context, ref conversation.Ref) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&membership.Membership{}).
		Where("conversation_kind = ? AND conversation_id = ?", ref.Kind, ref.ID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, mapError(err)
}

func (r *PostgresMembershipRepository) SetRole(ctx context.Context, ref conversation.Ref, userID, roleID int64) error {
	return affected(r.db.WithContext(ctx).
		Model(&membership.Membership{}).
		Where("conversation_kind = ? AND conversation_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		Update("role_id", roleID))
}

func (r *PostgresMembershipRepository) ReassignRole(ctx context.Context, fromRoleID, toRoleID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&membership.Membership{}).
		Where("role_id = ?", fromRoleID).
		Update("role_id", toRoleID)
	return res.RowsAffected, mapError(res.Error)
}

func (r *PostgresMembershipRepository) CountByRole(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&membership.Membership{}).Where("role_id = ?", roleID).Count(&count).Error
	return count, mapError(err)
}

func (r *PostgresMembershipRepository) SetMuted(ctx context.Context, ref conversation.Ref, userID int64, muted bool) error {
	return affected(r.db.WithContext(ctx).
		Model(&membership.Membership{}).
		Where("conversation_kind = ? AND conversation_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		Update("is_muted", muted))
}
