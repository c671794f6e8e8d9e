package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"parley-chat/config"
	"parley-chat/internal/repository"
	"parley-chat/internal/services"
	"parley-chat/pkg/database"

	"gorm.io/gorm"
)

const usage = `
Parley Chat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create or update every table and constraint
  status      Show database connection status and table presence
  seed-dev    Seed development users and print access tokens for them
  truncate    Truncate all tables (DANGEROUS)

Flags:
  -users int        Number of development users to seed (default 5)
  -token-ttl dur    Lifetime of printed development tokens (default 24h)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev -users 3
`

var tables = []string{
	"user_receipts",
	"member_receipts",
	"message_attachments",
	"messages",
	"notification_counters",
	"memberships",
	"role_permissions",
	"roles",
	"direct_chats",
	"channels",
	"groups",
	"users",
}

func main() {
	userCount := flag.Int("users", 5, "Number of development users to seed")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of printed development tokens")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close(db)

	switch command {
	case "up":
		runMigrationsUp(db)
	case "status":
		showStatus(db)
	case "seed-dev":
		runSeedDevelopment(cfg, db, *userCount, *tokenTTL)
	case "truncate":
		runTruncate(db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(db *gorm.DB) {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func showStatus(db *gorm.DB) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range tables {
		if database.TableExists(db, table) {
			log.Printf("✅ Table %-24s exists", table)
		} else {
			log.Printf("❌ Table %-24s does not exist", table)
		}
	}

	if count, err := database.GetTableCount(db); err == nil {
		log.Printf("📊 %d tables in schema public", count)
	}
}

func runSeedDevelopment(cfg *config.Config, db *gorm.DB, count int, ttl time.Duration) {
	log.Println("🌱 Seeding database (development mode)...")

	seedCfg := database.DefaultSeedConfig()
	seedCfg.TestUserCount = count
	users, err := database.SeedUsers(context.Background(), db, seedCfg)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	auth := services.NewAuthService(cfg)
	log.Println("📊 Seeded users:")
	for _, u := range users {
		token, err := auth.IssueAccessToken(u.ID, ttl)
		if err != nil {
			log.Fatalf("❌ Token for user %d: %v", u.ID, err)
		}
		log.Printf("   - %-8s id=%d token=%s", u.Name, u.ID, token)
	}
	log.Println("✅ Development seeding completed!")
}

func runTruncate(db *gorm.DB) {
	log.Println("⚠️  WARNING: This will TRUNCATE all tables!")

	if err := database.TruncateAllTables(db, tables); err != nil {
		log.Fatalf("❌ Truncate failed: %v", err)
	}

	log.Println("✅ All tables truncated!")
}
