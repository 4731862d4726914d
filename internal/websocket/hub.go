// Package websocket is the real-time transport: it accepts connections, gives
// each one an opaque handle id, lets clients identify themselves, and delivers
// events to a handle on a best-effort basis.
// Uses github.com/coder/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/presence"
	"go.uber.org/zap"
)

// Hub tracks live connections by handle id and routes inbound events to
// registered handlers
type Hub struct {
	// Live clients by handle id
	clients map[string]*Client

	// Community rooms: room id -> handle ids
	rooms map[string]map[string]struct{}

	// Mutex for client and room maps
	mu sync.RWMutex

	registry presence.Registry
	hooks    Hooks

	metrics *Metrics

	// Shutdown handling
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Message handlers
	handlers map[string]MessageHandler

	rateLimitConfig RateLimitConfig
}

// Hooks are optional callbacks for connection lifecycle events
type Hooks struct {
	// OnIdentify runs after a connection registered a user
	OnIdentify func(ctx context.Context, userID string)
	// OnDisconnect runs once when an identified connection goes away
	OnDisconnect func(ctx context.Context, userID string)
	// CanJoinRoom gates join-community; nil allows every identified user
	CanJoinRoom func(ctx context.Context, userID, roomID string) bool
}

// Metrics tracks WebSocket statistics
type Metrics struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	// MaxMessagesPerSecond per client
	MaxMessagesPerSecond int
	// BurstSize allows short bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

// MessageHandler processes incoming messages of a specific type
type MessageHandler func(client *Client, message *Message) error

// NewHub creates a new Hub backed by the given presence registry
func NewHub(registry presence.Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]*Client),
		rooms:           make(map[string]map[string]struct{}),
		registry:        registry,
		metrics:         &Metrics{},
		ctx:             ctx,
		cancel:          cancel,
		handlers:        make(map[string]MessageHandler),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// SetHooks installs lifecycle callbacks. Call before accepting connections.
func (h *Hub) SetHooks(hooks Hooks) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = hooks
}

func (h *Hub) getHooks() Hooks {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hooks
}

// Registry returns the presence registry the hub registers into
func (h *Hub) Registry() presence.Registry {
	return h.registry
}

// RegisterHandler registers a handler for a specific message type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
	logger.Log.Debug("Registered websocket handler", logger.WithEvent(msgType))
}

// GetHandler returns the handler for a message type
func (h *Hub) GetHandler(msgType string) (MessageHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// add makes a client publishable by handle
func (h *Hub) add(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx.Err() != nil {
		return fmt.Errorf("hub is shut down")
	}
	h.clients[client.HandleID] = client
	// read and write pumps; added under mu so Shutdown never waits on a zero counter it raced
	h.wg.Add(2)

	h.metrics.TotalConnections.Add(1)
	active := h.metrics.ActiveConnections.Add(1)
	metrics.Get().WSConnectionsTotal.Inc()
	metrics.Get().WSConnectionsActive.Inc()

	logger.Log.Info("Client connected",
		logger.WithHandleID(client.HandleID),
		zap.Int64("active", active),
	)
	return nil
}

// remove drops a client and its room memberships. Safe to call more than once.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.HandleID]; !ok {
		return
	}
	delete(h.clients, client.HandleID)

	for room := range client.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client.HandleID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.rooms = nil

	active := h.metrics.ActiveConnections.Add(-1)
	metrics.Get().WSConnectionsActive.Dec()

	logger.Log.Info("Client disconnected",
		logger.WithHandleID(client.HandleID),
		logger.WithUserID(client.UserID()),
		zap.Int64("active", active),
	)
}

// Publish delivers an event to one connection. It returns false when the handle
// is unknown, closed, or its buffer is full; callers treat that as "not
// delivered" and never retry.
func (h *Hub) Publish(handleID, event string, payload interface{}) bool {
	h.mu.RLock()
	client, ok := h.clients[handleID]
	h.mu.RUnlock()

	if !ok {
		metrics.Get().LivePushesTotal.WithLabelValues(event, "offline").Inc()
		return false
	}

	if err := client.Send(NewMessage(event, payload)); err != nil {
		metrics.Get().LivePushesTotal.WithLabelValues(event, "dropped").Inc()
		logger.Log.Debug("Publish dropped",
			logger.WithHandleID(handleID),
			logger.WithEvent(event),
			zap.Error(err),
		)
		return false
	}
	metrics.Get().LivePushesTotal.WithLabelValues(event, "delivered").Inc()
	return true
}

// PublishToRoom delivers an event to every connection in a community room and
// returns how many accepted it
func (h *Hub) PublishToRoom(roomID, event string, payload interface{}) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for handleID := range h.rooms[roomID] {
		if c, ok := h.clients[handleID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	data, err := json.Marshal(NewMessage(event, payload))
	if err != nil {
		logger.Log.Error("Error marshaling room message", logger.WithEvent(event), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, c := range targets {
		if c.enqueue(data) == nil {
			delivered++
		}
	}
	return delivered
}

// joinRoom adds a client to a room
func (h *Hub) joinRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.HandleID]; !ok {
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]struct{})
	}
	h.rooms[roomID][client.HandleID] = struct{}{}
	if client.rooms == nil {
		client.rooms = make(map[string]struct{})
	}
	client.rooms[roomID] = struct{}{}
}

// leaveRoom removes a client from a room
func (h *Hub) leaveRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, client.HandleID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(client.rooms, roomID)
}

// userClient resolves a user's registered handle to a client on this process
func (h *Hub) userClient(ctx context.Context, userID string) (*Client, bool) {
	handleID, ok := h.registry.Lookup(ctx, userID)
	if !ok {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[handleID]
	return client, ok
}

// JoinUserRoom puts the user's live connection into a room. It returns false
// when the user has no connection on this process.
func (h *Hub) JoinUserRoom(ctx context.Context, userID, roomID string) bool {
	client, ok := h.userClient(ctx, userID)
	if !ok {
		return false
	}
	h.joinRoom(client, roomID)
	return true
}

// LeaveUserRoom takes the user's live connection out of a room
func (h *Hub) LeaveUserRoom(ctx context.Context, userID, roomID string) bool {
	client, ok := h.userClient(ctx, userID)
	if !ok {
		return false
	}
	h.leaveRoom(client, roomID)
	return true
}

// RoomSize returns the number of connections in a room
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// IsUserOnline reports whether the registry has a live handle for the user
func (h *Hub) IsUserOnline(ctx context.Context, userID string) bool {
	_, ok := h.registry.Lookup(ctx, userID)
	return ok
}

// ConnectionCount returns the number of live connections, identified or not
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetIdentifiedUsers returns the user ids identified on this process
func (h *Hub) GetIdentifiedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{}, len(h.clients))
	users := make([]string, 0, len(h.clients))
	for _, c := range h.clients {
		if uid := c.UserID(); uid != "" {
			if _, dup := seen[uid]; !dup {
				seen[uid] = struct{}{}
				users = append(users, uid)
			}
		}
	}
	return users
}

// GetMetrics returns current WebSocket metrics
func (h *Hub) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   h.metrics.TotalConnections.Load(),
		ActiveConnections:  h.metrics.ActiveConnections.Load(),
		MessagesReceived:   h.metrics.MessagesReceived.Load(),
		MessagesSent:       h.metrics.MessagesSent.Load(),
		Errors:             h.metrics.Errors.Load(),
		ConnectionsDropped: h.metrics.ConnectionsDropped.Load(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// String implements Stringer for MetricsSnapshot
func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		m.ActiveConnections, m.TotalConnections,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped,
	)
}

// Shutdown tells every client the server is going away, closes the connections
// and waits for their pumps to exit
func (h *Hub) Shutdown(ctx context.Context) error {
	logger.Log.Info("Initiating WebSocket hub shutdown")

	h.mu.Lock()
	h.cancel()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	shutdownMsg := NewMessage(MessageTypeSystem, SystemPayload{Event: "server_shutdown"})
	for _, c := range clients {
		_ = c.Send(shutdownMsg)
	}
	for _, c := range clients {
		go c.Close(closeGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("WebSocket hub shutdown complete", zap.Int("closed", len(clients)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// SetRateLimitConfig updates the rate limiting configuration
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}

// registryTimeout bounds presence calls made from connection callbacks
const registryTimeout = 5 * time.Second
