package signaling

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/presence"
	"github.com/zfogg/beacon/internal/websocket"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakePublisher struct {
	mu     sync.Mutex
	live   bool
	handle string
	event  string
	body   map[string]interface{}
}

func (p *fakePublisher) Publish(handleID, event string, payload interface{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live {
		return false
	}
	p.handle, p.event = handleID, event
	p.body, _ = payload.(map[string]interface{})
	return true
}

func TestRelayRenamesEvents(t *testing.T) {
	ctx := context.Background()
	registry := presence.NewMemoryRegistry()
	require.NoError(t, registry.Register(ctx, "bob", "h-bob"))

	cases := []struct {
		name  string
		send  func(r *Relay) error
		event string
		field string
	}{
		{"offer", func(r *Relay) error { return r.CallUser(ctx, "alice", "bob", json.RawMessage(`{"sdp":"o"}`)) }, websocket.EventCallMade, "offer"},
		{"answer", func(r *Relay) error { return r.MakeAnswer(ctx, "alice", "bob", json.RawMessage(`{"sdp":"a"}`)) }, websocket.EventAnswerMade, "answer"},
		{"candidate", func(r *Relay) error { return r.ICECandidate(ctx, "alice", "bob", json.RawMessage(`{"c":1}`)) }, websocket.EventICECandidate, "candidate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublisher{live: true}
			relay := NewRelay(registry, pub)

			require.NoError(t, tc.send(relay))
			assert.Equal(t, "h-bob", pub.handle)
			assert.Equal(t, tc.event, pub.event)
			assert.Equal(t, "alice", pub.body["from"])
			assert.NotNil(t, pub.body[tc.field])
		})
	}
}

func TestRelayOffline(t *testing.T) {
	ctx := context.Background()
	registry := presence.NewMemoryRegistry()
	pub := &fakePublisher{live: true}
	relay := NewRelay(registry, pub)

	err := relay.CallUser(ctx, "alice", "bob", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotOnline)
	assert.Empty(t, pub.event)

	// registered but the connection is already gone
	require.NoError(t, registry.Register(ctx, "bob", "h-bob"))
	pub.live = false
	assert.ErrorIs(t, relay.CallUser(ctx, "alice", "bob", json.RawMessage(`{}`)), ErrNotOnline)
}

func TestRelayRejectsMalformed(t *testing.T) {
	relay := NewRelay(presence.NewMemoryRegistry(), &fakePublisher{live: true})
	ctx := context.Background()

	assert.ErrorIs(t, relay.CallUser(ctx, "alice", "", json.RawMessage(`{}`)), ErrNoTarget)
	assert.ErrorIs(t, relay.CallUser(ctx, "alice", "bob", nil), ErrNoPayload)
	assert.Error(t, relay.Relay(ctx, "hang-up", "alice", "bob", json.RawMessage(`{}`)))
}

func dial(t *testing.T, url, userID string) *cws.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := cws.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	require.NoError(t, wsjson.Write(ctx, conn, websocket.NewMessage(websocket.EventAddUser, userID)))
	// welcome, then identified
	for seen := 0; seen < 2; {
		var msg websocket.Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == websocket.MessageTypeSystem {
			seen++
		}
	}
	return conn
}

func TestSocketCallFlow(t *testing.T) {
	registry := presence.NewMemoryRegistry()
	hub := websocket.NewHub(registry)
	NewRelay(registry, hub).RegisterHandlers(hub)

	handler := websocket.NewHandler(hub, auth.NewTokenService([]byte("secret"), time.Hour), false, []string{"*"})
	router := gin.New()
	router.GET("/ws", handler.HandleWebSocket)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		srv.Close()
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// "from" in the frame is ignored in favour of the identified user
	require.NoError(t, wsjson.Write(ctx, alice, websocket.NewMessage(websocket.EventCallUser, map[string]interface{}{
		"from":  "mallory",
		"to":    "bob",
		"offer": map[string]string{"sdp": "v=0"},
	})))

	var got websocket.Message
	require.NoError(t, wsjson.Read(ctx, bob, &got))
	assert.Equal(t, websocket.EventCallMade, got.Type)
	body := got.Payload.(map[string]interface{})
	assert.Equal(t, "alice", body["from"])
	assert.Equal(t, "v=0", body["offer"].(map[string]interface{})["sdp"])

	// offline callee: no reply on the caller's socket, the next frame is the pong
	require.NoError(t, wsjson.Write(ctx, alice, websocket.NewMessage(websocket.EventCallUser, map[string]interface{}{
		"to":    "carol",
		"offer": "x",
	})))
	require.NoError(t, wsjson.Write(ctx, alice, websocket.NewMessage(websocket.MessageTypePing, nil)))
	var next websocket.Message
	require.NoError(t, wsjson.Read(ctx, alice, &next))
	assert.Equal(t, websocket.MessageTypePong, next.Type)
}
