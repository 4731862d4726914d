package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/repository/mongodb"
	"github.com/zfogg/beacon/internal/seed"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Parse command
	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		_ = logger.Initialize("info", "")
		logger.FatalWithFields("Invalid configuration", err)
	}
	if err := logger.Initialize(cfg.LogLevel, ""); err != nil {
		panic(err)
	}
	defer logger.Close()
	if envErr != nil {
		logger.Log.Info("Warning: .env file not found, using system environment variables")
	}

	switch command {
	case "dev":
		run(cfg, "🌱 Seeding development database...", func(ctx context.Context, s *seed.Seeder) error { return s.SeedDev(ctx) })
	case "test":
		run(cfg, "🧪 Seeding test database...", func(ctx context.Context, s *seed.Seeder) error { return s.SeedTest(ctx) })
	case "verify":
		run(cfg, "🔍 Verifying seed data...", func(ctx context.Context, s *seed.Seeder) error {
			counts, err := s.Verify(ctx)
			if err != nil {
				return err
			}
			logger.Log.Info("📊 Record counts",
				zap.Int64("users", counts.Users),
				zap.Int64("follows", counts.Follows),
				zap.Int64("blocks", counts.Blocks),
				zap.Int64("communities", counts.Communities),
				zap.Int64("members", counts.Members),
				zap.Int64("messages", counts.Messages),
				zap.Int64("notifications", counts.Notifications),
				zap.Int64("unread", counts.Unread),
			)
			return nil
		})
	case "clean":
		run(cfg, "🧹 Cleaning seed data...", func(ctx context.Context, s *seed.Seeder) error { return s.Clean(ctx) })
	default:
		fmt.Println("Usage: seed [dev|test|verify|clean]")
		fmt.Println("  dev   - Seed development database with realistic data")
		fmt.Println("  test  - Seed test database with a small fixed cast")
		fmt.Println("  verify - Print row counts for the seeded tables")
		fmt.Println("  clean - Remove all rows from the SQL tables (use with caution)")
		os.Exit(1)
	}
}

func run(cfg *config.Config, banner string, fn func(context.Context, *seed.Seeder) error) {
	logger.Log.Info(banner)
	ctx := context.Background()

	if err := database.Initialize(cfg); err != nil {
		logger.FatalWithFields("❌ Failed to connect to database", err)
	}
	defer database.Close()

	var (
		notifications repository.NotificationStore
		messages      repository.MessageStore
	)
	if cfg.StoreBackend == config.StoreMongo {
		store, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.FatalWithFields("❌ Failed to connect to MongoDB", err)
		}
		defer store.Close(ctx)
		notifications, messages = store.Notifications(), store.Messages()
	}

	seeder := seed.NewSeeder(database.DB, notifications, messages)
	if err := fn(ctx, seeder); err != nil {
		logger.FatalWithFields("❌ Seeding failed", err)
	}
	logger.Log.Info("✅ Done")
}
