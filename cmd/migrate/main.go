package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/repository/mongodb"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Parse command
	command := "up"
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
	case "up":
		runMigrationsUp(cfg)
	default:
		fmt.Println("Usage: migrate [up]")
		fmt.Println("  up     - Create or update tables and indexes")
		os.Exit(1)
	}
}

func runMigrationsUp(cfg *config.Config) {
	logger.Log.Info("🔄 Connecting to database...", zap.String("driver", cfg.DBDriver))

	if err := database.Initialize(cfg); err != nil {
		logger.FatalWithFields("❌ Failed to connect to database", err)
	}
	defer database.Close()

	logger.Log.Info("📈 Running migrations...")
	if err := database.Migrate(database.DB); err != nil {
		logger.FatalWithFields("❌ Migration failed", err)
	}

	if cfg.StoreBackend == config.StoreMongo {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.FatalWithFields("❌ Failed to connect to MongoDB", err)
		}
		defer store.Close(context.Background())

		logger.Log.Info("📈 Creating MongoDB indexes...")
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.FatalWithFields("❌ Index creation failed", err)
		}
	}

	logger.Log.Info("✅ All migrations completed successfully!")
}
