package database

import (
	"fmt"
	"time"

	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// Open creates and configures a gorm connection for the given driver and DSN
func Open(driver, dsn string, verbose bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
	if verbose {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if driver == config.DriverSQLite {
		// sqlite serialises writers; one connection keeps in-memory databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}

// Initialize opens the configured database and stores it in DB
func Initialize(cfg *config.Config) error {
	dsn := cfg.DatabaseURL
	if cfg.DBDriver == config.DriverSQLite {
		dsn = cfg.SQLitePath
	}

	db, err := Open(cfg.DBDriver, dsn, cfg.IsDevelopment() && cfg.LogLevel == "debug")
	if err != nil {
		return err
	}

	if cfg.OTelEnabled {
		if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
			return fmt.Errorf("failed to register tracing plugin: %w", err)
		}
	}

	DB = db
	logger.Log.Info("✅ Database connected successfully", zap.String("driver", cfg.DBDriver))
	return nil
}

// OpenInMemory returns a migrated private SQLite database
func OpenInMemory() (*gorm.DB, error) {
	db, err := Open(config.DriverSQLite, ":memory:", false)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs auto-migration for all models on the given connection
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.UserBlock{},
		&models.Community{},
		&models.CommunityMember{},
		&models.Notification{},
		&models.Message{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logger.Log.Info("✅ Database migrations completed")
	return nil
}

// createIndexes creates the composite indexes the read paths depend on.
// Statements are portable between postgres and sqlite.
func createIndexes(db *gorm.DB) error {
	stmts := []string{
		// Notification list, unread set and page reads
		"CREATE INDEX IF NOT EXISTS idx_notifications_to_created ON notifications (to_user_id, created_at DESC, id DESC)",

		// Conversations in both directions
		"CREATE INDEX IF NOT EXISTS idx_messages_pair_ts ON messages (sender_id, receiver_id, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_messages_receiver_type ON messages (receiver_id, type, timestamp)",

		"CREATE UNIQUE INDEX IF NOT EXISTS idx_user_blocks_unique ON user_blocks (blocker_id, blocked_id)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}
