package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/container"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/handlers"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/middleware"
	"github.com/zfogg/beacon/internal/repository/mongodb"
	"github.com/zfogg/beacon/internal/telemetry"
	"github.com/zfogg/beacon/internal/websocket"
	"go.uber.org/zap"
)

const serviceName = "beacon"

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// logger is not up yet
		_ = logger.Initialize("info", "")
		logger.FatalWithFields("Invalid configuration", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Log.Info("=== Beacon server starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.StoreBackend),
		zap.String("presence", cfg.PresenceBackend),
	)
	if envErr != nil {
		logger.Log.Debug(".env file not found, using system environment variables")
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTelEndpoint,
		Enabled:      cfg.OTelEnabled,
		SamplingRate: cfg.OTelSamplingRate,
	})
	if err != nil {
		logger.WarnWithFields("Tracing disabled: failed to initialize tracer", err)
	}

	metrics.Initialize()

	// Initialize database
	if err := database.Initialize(cfg); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	if err := database.Migrate(database.DB); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, 24*time.Hour)
	c := container.New().
		SetLogger(logger.Log).
		SetDB(database.DB).
		SetTokenService(tokens)
	c.OnCleanup(func(context.Context) error { return database.Close() })
	c.OnCleanup(func(ctx context.Context) error { return telemetry.Shutdown(ctx, tp) })

	if cfg.StoreBackend == config.StoreMongo {
		store, err := mongodb.Connect(context.Background(), cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.FatalWithFields("Failed to connect to MongoDB", err)
		}
		if err := store.EnsureIndexes(context.Background()); err != nil {
			logger.FatalWithFields("Failed to create MongoDB indexes", err)
		}
		c.SetMongo(store)
		c.OnCleanup(store.Close)
	}

	if cfg.PresenceBackend == config.PresenceRedis {
		redisClient, err := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			logger.FatalWithFields("Failed to connect to Redis", err)
		}
		c.SetCache(redisClient)
		c.OnCleanup(func(context.Context) error { return redisClient.Close() })
	}

	if err := c.Build(container.BuildOptions{
		PageCacheSize: cfg.PaginationCacheSize,
		PageCacheTTL:  cfg.PaginationCacheTTL,
	}); err != nil {
		logger.FatalWithFields("Failed to wire services", err)
	}

	wsHandler := websocket.NewHandler(c.Hub(), tokens, cfg.WSRequireAuth, cfg.CORSOrigins)
	h := handlers.NewHandlers(c.Engine(), c.Messaging(), c.Relay(), c.Directory(), c.Hub())

	r := newRouter(cfg, c, h, wsHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info("Beacon server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked websocket connections are not covered by srv.Shutdown
	if err := wsHandler.Shutdown(ctx); err != nil {
		logger.WarnWithFields("WebSocket shutdown warning", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.ErrorWithFields("Server forced to shutdown", err)
	}
	if err := c.Cleanup(ctx); err != nil {
		logger.WarnWithFields("Cleanup finished with errors", err)
	}

	logger.Log.Info("Server exited")
}

func newRouter(cfg *config.Config, c *container.Container, h *handlers.Handlers, wsHandler *websocket.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.TracingMiddleware(serviceName))
	r.Use(middleware.SpanEnrichmentMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	r.Use(cors.New(corsConfig))

	// Compression breaks the websocket upgrade
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/ws"})))

	r.GET("/health", func(ctx *gin.Context) {
		status := http.StatusOK
		checks := gin.H{"database": "ok"}
		if err := database.Health(); err != nil {
			status = http.StatusServiceUnavailable
			checks["database"] = err.Error()
		}
		if store := c.Mongo(); store != nil {
			checks["mongo"] = "ok"
			if err := store.Health(ctx.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				checks["mongo"] = err.Error()
			}
		}
		if redisClient := c.Cache(); redisClient != nil {
			checks["redis"] = "ok"
			if err := redisClient.Ping(ctx.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				checks["redis"] = err.Error()
			}
		}
		ctx.JSON(status, gin.H{
			"status":      http.StatusText(status),
			"checks":      checks,
			"connections": c.Hub().ConnectionCount(),
			"timestamp":   time.Now().UTC(),
			"service":     serviceName,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRequired := middleware.AuthMiddleware(c.Tokens())
	general := middleware.RedisRateLimitMiddleware(counter(c), middleware.DefaultRateLimitConfig())
	send := middleware.RedisRateLimitMiddleware(counter(c), middleware.SendRateLimitConfig())

	api := r.Group("/api/v1")
	{
		notifications := api.Group("/notifications", authRequired, general)
		{
			notifications.GET("", h.GetNotifications)
			notifications.GET("/unread", h.GetUnreadNotifications)
			notifications.GET("/page", h.GetNotificationPage)
			notifications.POST("/read", h.MarkNotificationsRead)
			notifications.PUT("/:id/read", h.MarkNotificationRead)
			notifications.POST("/followers", send, h.NotifyFollowers)
		}

		messages := api.Group("/messages", authRequired, general)
		{
			messages.POST("", send, h.SendMessage)
			messages.POST("/community", send, h.SendCommunityMessage)
			messages.GET("/conversation", h.GetConversation)
			messages.GET("/group/:id", h.GetGroupConversation)
			messages.PUT("/:id/read", h.MarkMessageRead)
		}

		calls := api.Group("/calls", authRequired, general)
		{
			calls.POST("/initiate", send, h.InitiateCall)
		}

		communities := api.Group("/communities", authRequired, general)
		{
			communities.POST("/:id/join", h.JoinCommunity)
			communities.POST("/:id/leave", h.LeaveCommunity)
			communities.POST("/:id/announce", middleware.RequireCommunityAdmin(c.Directory()), send, h.Announce)
			communities.POST("/:id/report", send, h.ReportCommunity)
		}

		// WebSocket routes
		ws := api.Group("/ws")
		{
			// auth via query param ?token=... or Authorization header
			ws.GET("", wsHandler.HandleWebSocket)
			ws.GET("/metrics", authRequired, wsHandler.HandleMetrics)
			ws.POST("/online", authRequired, wsHandler.HandleOnlineStatus)
		}
	}

	return r
}

// counter returns the shared rate limit counter, nil for per-process limits
func counter(c *container.Container) middleware.Counter {
	if redisClient := c.Cache(); redisClient != nil {
		return redisClient
	}
	return nil
}
