package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/messaging"
	"github.com/zfogg/beacon/internal/middleware"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/presence"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/signaling"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type pushed struct {
	target string
	event  string
	body   interface{}
}

// recordingHub treats every handle as live
type recordingHub struct {
	mu     sync.Mutex
	events []pushed
	joined []string
	left   []string
}

func (h *recordingHub) JoinUserRoom(_ context.Context, userID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joined = append(h.joined, userID+"@"+roomID)
	return true
}

func (h *recordingHub) LeaveUserRoom(_ context.Context, userID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, userID+"@"+roomID)
	return true
}

func (h *recordingHub) Publish(handleID, event string, payload interface{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, pushed{handleID, event, payload})
	return true
}

func (h *recordingHub) PublishToRoom(roomID, event string, payload interface{}) int {
	h.Publish("room:"+roomID, event, payload)
	return 1
}

func (h *recordingHub) named(event string) []pushed {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []pushed
	for _, e := range h.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// HandlersTestSuite runs the HTTP surface against an in-memory SQLite store
type HandlersTestSuite struct {
	suite.Suite
	db            *gorm.DB
	ctx           context.Context
	directory     repository.DirectoryRepository
	notifications repository.NotificationStore
	registry      *presence.MemoryRegistry
	hub           *recordingHub
	router        *gin.Engine
	community     *models.Community
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func (s *HandlersTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	s.Require().NoError(err)
	s.db = db
	s.ctx = context.Background()
	s.directory = repository.NewDirectoryRepository(db)
	s.notifications = repository.NewNotificationRepository(db)
	s.registry = presence.NewMemoryRegistry()
	s.hub = &recordingHub{}

	policy := fanout.NewBlockPolicy(s.directory)
	engine := fanout.New(fanout.Config{
		Store:     s.notifications,
		Registry:  s.registry,
		Publisher: s.hub,
		Policy:    policy,
		Directory: s.directory,
	})
	messages := messaging.NewService(repository.NewMessageRepository(db), s.directory, engine, policy, s.registry, s.hub)
	relay := signaling.NewRelay(s.registry, s.hub)
	h := NewHandlers(engine, messages, relay, s.directory, s.hub)

	for _, u := range []*models.User{
		{ID: "alice", Email: "alice@example.com", Username: "alice", Name: "Alice"},
		{ID: "bob", Email: "bob@example.com", Username: "bob"},
		{ID: "carol", Email: "carol@example.com", Username: "carol", Name: "Carol"},
	} {
		s.Require().NoError(s.directory.CreateUser(s.ctx, u))
	}
	s.community = &models.Community{Name: "Synths"}
	s.Require().NoError(s.directory.CreateCommunity(s.ctx, s.community))
	s.Require().NoError(s.directory.AddMember(s.ctx, s.community.ID, "alice", true))
	s.Require().NoError(s.directory.AddMember(s.ctx, s.community.ID, "bob", false))

	s.router = gin.New()
	s.setupRoutes(h)
}

func (s *HandlersTestSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// setupRoutes mirrors the server routes with a header-based auth stand-in
func (s *HandlersTestSuite) setupRoutes(h *Handlers) {
	auth := func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}

	api := s.router.Group("/api/v1", auth)

	notifications := api.Group("/notifications")
	notifications.GET("", h.GetNotifications)
	notifications.GET("/unread", h.GetUnreadNotifications)
	notifications.GET("/page", h.GetNotificationPage)
	notifications.POST("/read", h.MarkNotificationsRead)
	notifications.PUT("/:id/read", h.MarkNotificationRead)
	notifications.POST("/followers", h.NotifyFollowers)

	messages := api.Group("/messages")
	messages.POST("", h.SendMessage)
	messages.POST("/community", h.SendCommunityMessage)
	messages.GET("/conversation", h.GetConversation)
	messages.GET("/group/:id", h.GetGroupConversation)
	messages.PUT("/:id/read", h.MarkMessageRead)

	api.POST("/calls/initiate", h.InitiateCall)

	communities := api.Group("/communities")
	communities.POST("/:id/join", h.JoinCommunity)
	communities.POST("/:id/leave", h.LeaveCommunity)
	communities.POST("/:id/announce", middleware.RequireCommunityAdmin(s.directory), h.Announce)
	communities.POST("/:id/report", h.ReportCommunity)
}

func (s *HandlersTestSuite) do(method, path, userID string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (s *HandlersTestSuite) seedNotifications(to string, n int) {
	for i := 0; i < n; i++ {
		s.Require().NoError(s.notifications.Create(s.ctx, models.NewNotification(nil, nil, to, "hello")))
	}
}

func (s *HandlersTestSuite) notificationsFor(userID string) []*models.Notification {
	out, err := s.notifications.ListByRecipient(s.ctx, userID)
	s.Require().NoError(err)
	return out
}
