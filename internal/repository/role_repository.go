package repository

import (
	"context"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/permission"
	"parley-chat/internal/domain/role"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresRoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &PostgresRoleRepository{db: db}
}

func (r *PostgresRoleRepository) Create(ctx context.Context, ref conversation.Ref, t role.Template) (role.Role, error) {
	rl := role.Role{
		ConversationKind: ref.Kind,
		ConversationID:   ref.ID,
		Name:             t.Name,
		Color:            t.Color,
		IsSystem:         t.IsSystem,
		IsDefault:        t.IsDefault,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&rl).Error; err != nil {
		return role.Role{}, mapError(err)
	}
	if err := r.InsertPermissions(ctx, rl.ID, t.Permissions); err != nil {
		return role.Role{}, err
	}
	rl.Permissions = role.GrantRows(rl.ID, t.Permissions)
	return rl, nil
}

func (r *PostgresRoleRepository) GetByID(ctx context.Context, id int64) (role.Role, error) {
	var rl role.Role
	if err := r.db.WithContext(ctx).Preload("Permissions").Where("id = ?", id).First(&rl).Error; err != nil {
		return role.Role{}, mapError(err)
	}
	return rl, nil
}

func (r *PostgresRoleRepository) GetByName(ctx context.Context, ref conversation.Ref, name string) (role.Role, error) {
	var rl role.Role
	err := r.db.WithContext(ctx).
		Preload("Permissions").
		Where("conversation_kind = ? AND conversation_id = ? AND name = ?", ref.Kind, ref.ID, name).
		First(&rl).Error
	if err != nil {
		return role.Role{}, mapError(err)
	}
	return rl, nil
}

func (r *PostgresRoleRepository) Lock(ctx context.Context, id int64) (role.Role, error) {
	var rl role.Role
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&rl).Error
	if err != nil {
		return role.Role{}, mapError(err)
	}
	return rl, nil
}

func (r *PostgresRoleRepository) GetDefault(ctx context.Context, ref conversation.Ref) (role.Role, error) {
	var rl role.Role
	err := r.db.WithContext(ctx).
		Preload("Permissions").
		Where("conversation_kind = ? AND conversation_id = ? AND is_default = ?", ref.Kind, ref.ID, true).
		First(&rl).Error
	if err != nil {
		return role.Role{}, mapError(err)
	}
	return rl, nil
}

func (r *PostgresRoleRepository) List(ctx context.Context, ref conversation.Ref) ([]role.Role, error) {
	var roles []role.Role
	err := r.db.WithContext(ctx).
		Preload("Permissions").
		Where("conversation_kind = ? AND conversation_id = ?", ref.Kind, ref.ID).
		Order("id ASC").
		Find(&roles).Error
	if err != nil {
		return nil, mapError(err)
	}
	return roles, nil
}

func (r *PostgresRoleRepository) Update(ctx context.Context, id int64, name, color string) error {
	return affected(r.db.WithContext(ctx).
		Model(&role.Role{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"name": name, "color": color}))
}

func (r *PostgresRoleRepository) DeletePermissions(ctx context.Context, id int64) error {
	return mapError(r.db.WithContext(ctx).Where("role_id = ?", id).Delete(&role.RolePermission{}).Error)
}

func (r *PostgresRoleRepository) InsertPermissions(ctx context.Context, id int64, set permission.Set) error {
	rows := role.GrantRows(id, set)
	if len(rows) == 0 {
		return nil
	}
	return mapError(r.db.WithContext(ctx).Create(&rows).Error)
}

func (r *PostgresRoleRepository) Delete(ctx context.Context, id int64) error {
	return affected(r.db.WithContext(ctx).Delete(&role.Role{}, "id = ?", id))
}

func (r *PostgresRoleRepository) DeleteByConversation(ctx context.Context, ref conversation.Ref) error {
	return mapError(r.db.WithContext(ctx).
		Where("conversation_kind = ? AND conversation_id = ?", ref.Kind, ref.ID).
		Delete(&role.Role{}).Error)
}
