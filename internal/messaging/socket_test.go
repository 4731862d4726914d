package messaging

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/presence"
	"github.com/zfogg/beacon/internal/repository"
	ws "github.com/zfogg/beacon/internal/websocket"
)

type socketServer struct {
	hub       *ws.Hub
	messages  repository.MessageStore
	directory repository.DirectoryRepository
	community *models.Community
	url       string
}

// newSocketServer runs the messaging socket handlers on a real hub.
// alice and bob are members of "Synths", carol is not.
func newSocketServer(t *testing.T) *socketServer {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	directory := repository.NewDirectoryRepository(db)
	messages := repository.NewMessageRepository(db)
	registry := presence.NewMemoryRegistry()
	hub := ws.NewHub(registry)

	policy := fanout.NewBlockPolicy(directory)
	engine := fanout.New(fanout.Config{
		Store:     repository.NewNotificationRepository(db),
		Registry:  registry,
		Publisher: hub,
		Policy:    policy,
		Directory: directory,
	})
	NewService(messages, directory, engine, policy, registry, hub).RegisterHandlers(hub)

	for _, u := range []*models.User{
		{ID: "alice", Email: "alice@example.com", Username: "alice", Name: "Alice"},
		{ID: "bob", Email: "bob@example.com", Username: "bob"},
		{ID: "carol", Email: "carol@example.com", Username: "carol"},
	} {
		require.NoError(t, directory.CreateUser(ctx, u))
	}
	community := &models.Community{Name: "Synths"}
	require.NoError(t, directory.CreateCommunity(ctx, community))
	require.NoError(t, directory.AddMember(ctx, community.ID, "alice", true))
	require.NoError(t, directory.AddMember(ctx, community.ID, "bob", false))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour)
	router.GET("/ws", ws.NewHandler(hub, tokens, false, []string{"*"}).HandleWebSocket)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(shutdownCtx)
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return &socketServer{
		hub:       hub,
		messages:  messages,
		directory: directory,
		community: community,
		url:       "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func write(t *testing.T, conn *websocket.Conn, msg *ws.Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

// readUntil reads frames until match accepts one
func readUntil(t *testing.T, conn *websocket.Conn, match func(*ws.Message) bool) *ws.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var msg ws.Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if match(&msg) {
			return &msg
		}
	}
}

func systemEvent(event string) func(*ws.Message) bool {
	return func(m *ws.Message) bool {
		var sys ws.SystemPayload
		return m.Type == ws.MessageTypeSystem && m.ParsePayload(&sys) == nil && sys.Event == event
	}
}

func ofType(msgType string) func(*ws.Message) bool {
	return func(m *ws.Message) bool { return m.Type == msgType }
}

func (ss *socketServer) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ss.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	write(t, conn, ws.NewMessage(ws.EventAddUser, userID))
	readUntil(t, conn, systemEvent("identified"))
	return conn
}

func TestSocketSendDirect(t *testing.T) {
	ss := newSocketServer(t)
	alice := ss.connect(t, "alice")
	bob := ss.connect(t, "bob")

	write(t, alice, ws.NewMessageWithID(ws.EventSendMessage, "m1", map[string]string{"to": "bob", "msg": "hi bob"}))

	received := readUntil(t, bob, ofType(ws.EventMessageReceive))
	var msg models.Message
	require.NoError(t, received.ParsePayload(&msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "hi bob", msg.Content)
	assert.False(t, msg.Timestamp.IsZero())

	reply := readUntil(t, alice, systemEvent("message_sent"))
	assert.Equal(t, "m1", reply.ReplyTo)
	var sys ws.SystemPayload
	require.NoError(t, reply.ParsePayload(&sys))
	assert.Equal(t, msg.ID, sys.Data["id"])

	stored, err := ss.messages.Conversation(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, msg.ID, stored[0].ID)
}

func TestSocketSendDirectErrors(t *testing.T) {
	ss := newSocketServer(t)
	alice := ss.connect(t, "alice")
	require.NoError(t, ss.directory.Block(context.Background(), "bob", "alice"))

	tests := []struct {
		name    string
		payload map[string]string
		code    string
	}{
		{"no receiver", map[string]string{"msg": "hi"}, "invalid_payload"},
		{"empty message", map[string]string{"to": "bob", "msg": "  "}, "invalid_payload"},
		{"blocked", map[string]string{"to": "bob", "msg": "hi"}, "forbidden"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := fmt.Sprintf("e%d", i)
			write(t, alice, ws.NewMessageWithID(ws.EventSendMessage, id, tt.payload))

			frame := readUntil(t, alice, ofType(ws.MessageTypeError))
			assert.Equal(t, id, frame.ReplyTo)
			var p ws.ErrorPayload
			require.NoError(t, frame.ParsePayload(&p))
			assert.Equal(t, tt.code, p.Code)
		})
	}

	stored, err := ss.messages.Conversation(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSocketSendCommunity(t *testing.T) {
	ss := newSocketServer(t)
	alice := ss.connect(t, "alice")
	bob := ss.connect(t, "bob")

	write(t, bob, ws.NewMessage(ws.EventJoinCommunity, map[string]string{"community_id": ss.community.ID}))
	require.Eventually(t, func() bool { return ss.hub.RoomSize(ss.community.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	for _, key := range []string{"community_id", "communityId"} {
		write(t, alice, ws.NewMessageWithID(ws.EventSendCommunity, key, map[string]string{key: ss.community.ID, "msg": "jam at 8"}))

		got := readUntil(t, bob, ofType(ws.EventCommunityMessage))
		var msg models.Message
		require.NoError(t, got.ParsePayload(&msg))
		assert.Equal(t, models.MessageGroup, msg.Type)
		assert.Equal(t, ss.community.ID, msg.ReceiverID)

		reply := readUntil(t, alice, systemEvent("message_sent"))
		assert.Equal(t, key, reply.ReplyTo)
	}

	history, err := ss.messages.GroupConversation(context.Background(), ss.community.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSocketSendCommunityRejectsNonMember(t *testing.T) {
	ss := newSocketServer(t)
	carol := ss.connect(t, "carol")

	write(t, carol, ws.NewMessageWithID(ws.EventSendCommunity, "c1", map[string]string{"community_id": ss.community.ID, "msg": "let me in"}))
	frame := readUntil(t, carol, ofType(ws.MessageTypeError))
	assert.Equal(t, "c1", frame.ReplyTo)
	var p ws.ErrorPayload
	require.NoError(t, frame.ParsePayload(&p))
	assert.Equal(t, "forbidden", p.Code)

	write(t, carol, ws.NewMessageWithID(ws.EventSendCommunity, "c2", map[string]string{"community_id": "nope", "msg": "hello?"}))
	frame = readUntil(t, carol, ofType(ws.MessageTypeError))
	require.NoError(t, frame.ParsePayload(&p))
	assert.Equal(t, "not_found", p.Code)

	history, err := ss.messages.GroupConversation(context.Background(), ss.community.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
