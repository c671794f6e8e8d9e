package repository

import (
	"context"
	"time"

	"parley-chat/internal/domain/user"

	"gorm.io/gorm"
)

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (r *PostgresUserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *PostgresUserRepository) UpdateLastOnline(ctx context.Context, id int64, at time.Time) error {
	return affected(r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", id).
		Update("last_online", at))
}
