package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	// Send buffer size
	sendBufferSize = 256

	closeNormal    = websocket.StatusNormalClosure
	closeGoingAway = websocket.StatusGoingAway
	closeInternal  = websocket.StatusInternalError
)

var (
	errClientClosed = errors.New("client connection closed")
	errBufferFull   = errors.New("send buffer full")
)

// Client represents a single WebSocket connection
type Client struct {
	// The websocket connection
	conn *websocket.Conn

	// Hub reference
	hub *Hub

	// HandleID is assigned at accept time and never changes
	HandleID string

	// authUserID is the token subject, empty for anonymous connections
	authUserID string

	// userID is set by add-user
	userID string

	// Buffered channel of outbound messages; never closed, writers select on ctx
	send chan []byte

	// Rooms joined, guarded by hub.mu
	rooms map[string]struct{}

	// Connection metadata
	ConnectedAt time.Time
	LastPingAt  time.Time
	RemoteAddr  string
	UserAgent   string

	// Rate limiting
	rateLimiter *RateLimiter

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex for connection state
	mu sync.RWMutex

	closed    bool
	closeOnce sync.Once
}

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens    float64
	maxTokens float64
	refill    float64
	lastTime  time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(maxPerSecond),
		lastTime:  time.Now(),
	}
}

// Allow checks if an action is allowed and consumes a token
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.lastTime = now

	r.tokens += elapsed * r.refill
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// NewClient creates a client with a fresh handle id. authUserID may be empty.
func NewClient(hub *Hub, conn *websocket.Conn, authUserID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		hub:         hub,
		conn:        conn,
		HandleID:    uuid.NewString(),
		authUserID:  authUserID,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		rateLimiter: NewRateLimiter(config.MaxMessagesPerSecond, config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// UserID returns the identified user, or "" before add-user
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Context is cancelled when the connection closes
func (c *Client) Context() context.Context {
	return c.ctx
}

// RequireUser returns the identified user or sends a not_identified error
func (c *Client) RequireUser(message *Message) (string, bool) {
	if uid := c.UserID(); uid != "" {
		return uid, true
	}
	c.SendReplyError(message, "not_identified", "send add-user before "+message.Type)
	return "", false
}

// ReadPump reads frames until the connection fails or closes
func (c *Client) ReadPump() {
	defer c.Close(closeNormal, "closing")

	c.conn.SetReadLimit(maxMessageSize)

	for {
		readCtx, readCancel := context.WithTimeout(c.ctx, pongWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Debug("Client disconnected normally", logger.WithHandleID(c.HandleID))
			} else if c.ctx.Err() == nil {
				// Only log errors if we're not shutting down
				logger.Log.Warn("Read error for client", logger.WithHandleID(c.HandleID), zap.Error(err))
				c.hub.metrics.Errors.Add(1)
			}
			return
		}

		if !c.rateLimiter.Allow() {
			c.SendError("rate_limited", "Too many messages, please slow down")
			c.hub.metrics.Errors.Add(1)
			continue
		}

		c.hub.metrics.MessagesReceived.Add(1)

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Log.Warn("WebSocket JSON parse error", logger.WithHandleID(c.HandleID), zap.Error(err))
			c.SendError("invalid_json", "Failed to parse message")
			continue
		}

		c.handleMessage(&message)
	}
}

// WritePump drains the send buffer and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()

			if err != nil {
				if c.ctx.Err() == nil {
					logger.Log.Warn("Write error for client", logger.WithHandleID(c.HandleID), zap.Error(err))
					c.hub.metrics.Errors.Add(1)
				}
				c.Close(closeInternal, "write failed")
				return
			}
			c.hub.metrics.MessagesSent.Add(1)

		case <-ticker.C:
			c.mu.Lock()
			c.LastPingAt = time.Now()
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Log.Warn("Ping failed for client", logger.WithHandleID(c.HandleID), zap.Error(err))
				c.Close(closeGoingAway, "ping timeout")
				return
			}
		}
	}
}

// handleMessage routes incoming messages to appropriate handlers
func (c *Client) handleMessage(message *Message) {
	if message.Timestamp.IsZero() {
		message.Timestamp = FlexibleTime{Time: time.Now().UTC()}
	}
	metrics.Get().WSEventsReceived.WithLabelValues(message.Type).Inc()

	switch message.Type {
	case MessageTypePing, "heartbeat": // "heartbeat" is an alias for ping
		c.handlePing(message)
		return

	case EventAddUser:
		c.handleIdentify(message)
		return

	case EventJoinCommunity:
		c.handleJoinRoom(message)
		return

	case EventLeaveCommunity:
		if room := parseRoomID(message.Payload); room != "" {
			c.hub.leaveRoom(c, room)
		}
		return
	}

	if handler, ok := c.hub.GetHandler(message.Type); ok {
		if err := handler(c, message); err != nil {
			logger.Log.Error("Handler error",
				logger.WithEvent(message.Type),
				logger.WithHandleID(c.HandleID),
				zap.Error(err))
			c.SendReplyError(message, "handler_error", fmt.Sprintf("Failed to process %s", message.Type))
		}
		return
	}

	logger.Log.Warn("Unknown message type",
		logger.WithHandleID(c.HandleID),
		logger.WithEvent(message.Type))
	c.SendReplyError(message, "unknown_type", fmt.Sprintf("Unknown message type: %s", message.Type))
}

// handleIdentify binds the connection to a user and registers it for presence.
// A token-authenticated connection may only identify as its own user.
func (c *Client) handleIdentify(message *Message) {
	userID := parseUserID(message.Payload)
	if userID == "" {
		c.SendReplyError(message, "invalid_payload", "add-user requires a user id")
		return
	}
	if c.authUserID != "" && userID != c.authUserID {
		logger.Log.Warn("add-user does not match token subject",
			logger.WithHandleID(c.HandleID),
			logger.WithUserID(userID))
		c.SendReplyError(message, "forbidden", "cannot identify as another user")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, registryTimeout)
	defer cancel()

	// Registering under c.mu orders this against Close: either Close sees the
	// user and unregisters it, or identify sees closed and does nothing.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.userID = userID
	err := c.hub.registry.Register(ctx, userID, c.HandleID)
	c.mu.Unlock()

	if err != nil {
		metrics.Get().PresenceErrorsTotal.WithLabelValues("register").Inc()
		logger.Log.Error("Presence register failed",
			logger.WithUserID(userID),
			logger.WithHandleID(c.HandleID),
			zap.Error(err))
		c.SendReplyError(message, "presence_unavailable", "could not register presence")
		return
	}

	metrics.Get().PresenceIdentified.Inc()
	logger.Log.Info("User identified", logger.WithUserID(userID), logger.WithHandleID(c.HandleID))

	if hook := c.hub.getHooks().OnIdentify; hook != nil {
		hook(c.ctx, userID)
	}

	_ = c.Send(NewReply(message, MessageTypeSystem, SystemPayload{
		Event: "identified",
		Data: map[string]interface{}{
			"user_id":   userID,
			"handle_id": c.HandleID,
		},
	}))
}

func (c *Client) handleJoinRoom(message *Message) {
	room := parseRoomID(message.Payload)
	if room == "" {
		c.SendReplyError(message, "invalid_payload", "join-community requires a community id")
		return
	}

	if check := c.hub.getHooks().CanJoinRoom; check != nil {
		userID, ok := c.RequireUser(message)
		if !ok {
			return
		}
		if !check(c.ctx, userID, room) {
			c.SendReplyError(message, "forbidden", "not a member of this community")
			return
		}
	}

	c.hub.joinRoom(c, room)
}

// handlePing responds to ping messages with pong
func (c *Client) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	latency := serverTime - ping.ClientTime

	// Best-effort pong response - connection may be closing
	_ = c.Send(NewReply(message, MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    latency,
	}))
}

// Send queues a message for this client without blocking
func (c *Client) Send(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return errClientClosed
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return errClientClosed
	default:
		// A client that cannot keep up is dropped rather than slowing publishers
		c.hub.metrics.ConnectionsDropped.Add(1)
		go c.Close(websocket.StatusPolicyViolation, "send buffer full")
		return errBufferFull
	}
}

// SendError sends an error message to the client
func (c *Client) SendError(code, message string) {
	_ = c.Send(NewErrorMessage(code, message))
}

// SendReplyError sends an error correlated with the client's frame
func (c *Client) SendReplyError(original *Message, code, message string) {
	msg := NewErrorMessage(code, message)
	msg.ReplyTo = original.ID
	_ = c.Send(msg)
}

// Close runs the disconnect path exactly once, whichever side triggers it:
// the handle stops being publishable, presence is released for this handle
// only, and the socket is closed.
func (c *Client) Close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		userID := c.userID
		c.mu.Unlock()

		c.hub.remove(c)

		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		if err := c.hub.registry.Unregister(ctx, c.HandleID); err != nil {
			metrics.Get().PresenceErrorsTotal.WithLabelValues("unregister").Inc()
			logger.Log.Error("Presence unregister failed",
				logger.WithHandleID(c.HandleID),
				logger.WithUserID(userID),
				zap.Error(err))
		}

		if userID != "" {
			if hook := c.hub.getHooks().OnDisconnect; hook != nil {
				hook(ctx, userID)
			}
		}
		cancel()

		_ = c.conn.Close(status, reason)
		c.cancel()
	})
}

// IsClosed returns whether the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// GetInfo returns client information
func (c *Client) GetInfo() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientInfo{
		HandleID:    c.HandleID,
		UserID:      c.userID,
		ConnectedAt: c.ConnectedAt,
		LastPingAt:  c.LastPingAt,
		RemoteAddr:  c.RemoteAddr,
		UserAgent:   c.UserAgent,
	}
}

// ClientInfo represents public client information
type ClientInfo struct {
	HandleID    string    `json:"handle_id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPingAt  time.Time `json:"last_ping_at"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent"`
}
