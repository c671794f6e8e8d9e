package repository

import (
	"context"
	"errors"

	parley_errors "parley-chat/pkg/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// mapError translates gorm and postgres errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return parley_errors.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return parley_errors.ErrAlreadyExists
	}
	switch pgCode(err) {
	case pgCheckViolation, pgForeignKeyViolation:
		return errors.Join(parley_errors.ErrInvariantViolation, err)
	}
	return err
}

// affected maps a write result to ErrNotFound when no row matched.
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return parley_errors.ErrNotFound
	}
	return nil
}

// PostgresStore is the gorm-backed Store.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Repos() Repositories {
	return newRepositories(s.db)
}

// Transaction runs fn with repositories bound to a single database transaction.
// Any error returned by fn rolls the whole transaction back.
func (s *PostgresStore) Transaction(ctx context.Context, fn func(r Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepositories(tx))
	})
}

func newRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         NewUserRepository(db),
		Conversations: NewConversationRepository(db),
		Roles:         NewRoleRepository(db),
		Memberships:   NewMembershipRepository(db),
		Counters:      NewCounterRepository(db),
		Messages:      NewMessageRepository(db),
	}
}
