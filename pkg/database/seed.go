package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"parley-chat/internal/domain/user"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	TestUserCount int
	EmailDomain   string
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		TestUserCount: 5,
		EmailDomain:   "parley.local",
	}
}

// SeedUsers inserts development user profiles. Existing emails are left untouched,
// so the command can be re-run.
func SeedUsers(ctx context.Context, db *gorm.DB, cfg *SeedConfig) ([]user.User, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	log.Println("Starting database seeding...")

	users := make([]user.User, 0, cfg.TestUserCount)
	for i := 1; i <= cfg.TestUserCount; i++ {
		users = append(users, user.User{
			Name:      fmt.Sprintf("user%d", i),
			Email:     fmt.Sprintf("user%d@%s", i, cfg.EmailDomain),
			CreatedAt: time.Now(),
		})
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&users).Error; err != nil {
			return err
		}
		emails := make([]string, len(users))
		for i, u := range users {
			emails[i] = u.Email
		}
		return tx.Where("email IN ?", emails).Order("id ASC").Find(&users).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}

	log.Printf("Seeded %d users", len(users))
	return users, nil
}
