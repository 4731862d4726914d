package container

import (
	"context"
	"time"

	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/logger"
)

// NewMock creates a fully built container over a private in-memory SQLite
// database and in-memory presence. Useful for tests and local tooling.
func NewMock(secret []byte) (*Container, error) {
	db, err := database.OpenInMemory()
	if err != nil {
		return nil, err
	}

	c := New().
		SetDB(db).
		SetLogger(logger.Log).
		SetTokenService(auth.NewTokenService(secret, time.Hour))
	c.OnCleanup(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if err := c.Build(BuildOptions{}); err != nil {
		return nil, err
	}
	return c, nil
}
