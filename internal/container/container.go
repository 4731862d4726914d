// Package container provides dependency injection management for the Beacon server.
// It holds the infrastructure handles and wires the realtime services on top of them.
package container

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/messaging"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/pagination"
	"github.com/zfogg/beacon/internal/presence"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/repository/mongodb"
	"github.com/zfogg/beacon/internal/signaling"
	"github.com/zfogg/beacon/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds all application dependencies and provides type-safe access.
// Infrastructure is registered with Set* methods; Build wires the services.
type Container struct {
	// Core infrastructure
	db     *gorm.DB
	logger *zap.Logger
	cache  *cache.RedisClient
	mongo  *mongodb.Store
	tokens *auth.TokenService

	// Stores
	registry      presence.Registry
	notifications repository.NotificationStore
	messages      repository.MessageStore
	directory     repository.DirectoryRepository

	// Services, set by Build
	hub       *websocket.Hub
	engine    *fanout.Engine
	messaging *messaging.Service
	relay     *signaling.Relay

	// Lifecycle hooks
	cleanupFuncs []func(context.Context) error
	mu           sync.RWMutex
}

// BuildOptions tunes the services Build creates
type BuildOptions struct {
	PageCacheSize int
	PageCacheTTL  time.Duration
}

// New creates a new empty container
func New() *Container {
	return &Container{
		cleanupFuncs: make([]func(context.Context) error, 0),
	}
}

// ============================================================================
// INFRASTRUCTURE SETTERS/GETTERS
// ============================================================================

// SetDB registers the relational database
func (c *Container) SetDB(db *gorm.DB) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
	return c
}

// DB returns the database connection
func (c *Container) DB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// SetLogger registers the logger
func (c *Container) SetLogger(l *zap.Logger) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
	return c
}

// Logger returns the logger instance
func (c *Container) Logger() *zap.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggerLocked()
}

func (c *Container) loggerLocked() *zap.Logger {
	if c.logger == nil {
		return logger.Log
	}
	return c.logger
}

// SetCache registers the Redis client and switches presence to Redis
func (c *Container) SetCache(client *cache.RedisClient) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = client
	if client != nil {
		c.registry = presence.NewRedisRegistry(client)
	}
	return c
}

// Cache returns the Redis client, nil when presence is in memory
func (c *Container) Cache() *cache.RedisClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache
}

// SetMongo registers the document store used for notifications and messages
func (c *Container) SetMongo(store *mongodb.Store) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mongo = store
	if store != nil {
		c.notifications = store.Notifications()
		c.messages = store.Messages()
	}
	return c
}

// Mongo returns the document store, nil when the SQL store is used
func (c *Container) Mongo() *mongodb.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mongo
}

// SetTokenService registers the JWT service
func (c *Container) SetTokenService(tokens *auth.TokenService) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
	return c
}

// Tokens returns the JWT service
func (c *Container) Tokens() *auth.TokenService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// SetRegistry overrides the presence registry
func (c *Container) SetRegistry(registry presence.Registry) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry = registry
	return c
}

// Registry returns the presence registry
func (c *Container) Registry() presence.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}

// Notifications returns the notification store
func (c *Container) Notifications() repository.NotificationStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notifications
}

// Messages returns the message store
func (c *Container) Messages() repository.MessageStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messages
}

// Directory returns the user/community directory
func (c *Container) Directory() repository.DirectoryRepository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.directory
}

// ============================================================================
// SERVICES
// ============================================================================

// Hub returns the websocket hub
func (c *Container) Hub() *websocket.Hub {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hub
}

// Engine returns the fan-out engine
func (c *Container) Engine() *fanout.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// Messaging returns the messaging service
func (c *Container) Messaging() *messaging.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messaging
}

// Relay returns the signaling relay
func (c *Container) Relay() *signaling.Relay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relay
}

// Build validates the registered infrastructure and wires the realtime services.
// SQL stores fill in for anything SetMongo did not provide, and presence
// defaults to the in-memory registry.
func (c *Container) Build(opts BuildOptions) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.notifications == nil {
		c.notifications = repository.NewNotificationRepository(c.db)
	}
	if c.messages == nil {
		c.messages = repository.NewMessageRepository(c.db)
	}
	if c.registry == nil {
		c.registry = presence.NewMemoryRegistry()
	}
	c.directory = repository.NewDirectoryRepository(c.db)

	if opts.PageCacheSize <= 0 {
		opts.PageCacheSize = 10000
	}
	if opts.PageCacheTTL <= 0 {
		opts.PageCacheTTL = 30 * time.Minute
	}

	c.hub = websocket.NewHub(c.registry)
	policy := fanout.NewBlockPolicy(c.directory)
	c.engine = fanout.New(fanout.Config{
		Store:     c.notifications,
		Registry:  c.registry,
		Publisher: c.hub,
		Policy:    policy,
		Directory: c.directory,
		Pages:     pagination.New[*models.Notification](opts.PageCacheSize, opts.PageCacheTTL),
	})
	c.messaging = messaging.NewService(c.messages, c.directory, c.engine, policy, c.registry, c.hub)
	c.relay = signaling.NewRelay(c.registry, c.hub)

	c.hub.SetHooks(c.hubHooks())
	c.messaging.RegisterHandlers(c.hub)
	c.relay.RegisterHandlers(c.hub)
	return nil
}

// hubHooks keeps the directory's online flag in step with the transport and
// limits community rooms to members
func (c *Container) hubHooks() websocket.Hooks {
	directory := c.directory
	registry := c.registry
	log := c.loggerLocked()
	setOnline := func(ctx context.Context, userID string, online bool) {
		if err := directory.SetOnline(ctx, userID, online); err != nil {
			log.Warn("Failed to update online status",
				logger.WithUserID(userID),
				zap.Bool("online", online),
				zap.Error(err))
		}
	}

	return websocket.Hooks{
		OnIdentify: func(ctx context.Context, userID string) {
			setOnline(ctx, userID, true)
		},
		OnDisconnect: func(ctx context.Context, userID string) {
			// runs after the handle is unregistered; a newer connection keeps the user online
			if _, ok := registry.Lookup(ctx, userID); ok {
				return
			}
			setOnline(ctx, userID, false)
		},
		CanJoinRoom: func(ctx context.Context, userID, roomID string) bool {
			members, err := directory.MemberIDs(ctx, roomID)
			if err != nil {
				log.Warn("Failed to load community members", zap.String("community_id", roomID), zap.Error(err))
				return false
			}
			return slices.Contains(members, userID)
		},
	}
}

// ============================================================================
// LIFECYCLE MANAGEMENT
// ============================================================================

// OnCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first cleaned up).
func (c *Container) OnCleanup(fn func(context.Context) error) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
	return c
}

// Cleanup performs graceful shutdown of all registered services.
// It calls cleanup functions in reverse order of registration and returns
// the first error after running them all.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](ctx); err != nil {
			// Log error but continue cleanup
			c.loggerLocked().Error("Cleanup function failed", zap.Int("index", i), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	c.cleanupFuncs = c.cleanupFuncs[:0]
	return first
}

// ============================================================================
// VALIDATION
// ============================================================================

// Validate checks that all required dependencies are registered.
func (c *Container) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	missingDeps := []string{}
	if c.db == nil {
		missingDeps = append(missingDeps, "database (DB)")
	}
	if c.tokens == nil {
		missingDeps = append(missingDeps, "token service")
	}

	if len(missingDeps) > 0 {
		return NewInitializationError("Missing required dependencies", missingDeps)
	}
	return nil
}
