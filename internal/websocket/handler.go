package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/logger"
	"go.uber.org/zap"
)

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub            *Hub
	tokens         *auth.TokenService
	requireAuth    bool
	originPatterns []string
}

// NewHandler creates a new WebSocket handler. With requireAuth unset, a
// connection without a token is accepted and may identify as any user.
func NewHandler(hub *Hub, tokens *auth.TokenService, requireAuth bool, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		tokens:         tokens,
		requireAuth:    requireAuth,
		originPatterns: originPatterns,
	}
}

// HandleWebSocket handles WebSocket upgrade requests.
// The token is read from the Authorization header (Bearer <token>) or ?token=.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	authUserID, err := h.authenticateRequest(c)
	if err != nil {
		logger.Log.Warn("WebSocket auth failed", logger.WithIP(c.ClientIP()), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, h.acceptOptions())
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, authUserID)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	if err := h.hub.add(client); err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Welcome to Beacon!",
		Data: map[string]interface{}{
			"handle_id":   client.HandleID,
			"server_time": time.Now().UTC().UnixMilli(),
		},
	}))

	go func() {
		defer h.hub.wg.Done()
		client.WritePump()
	}()

	// Blocks until the client disconnects
	client.ReadPump()
	h.hub.wg.Done()
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}
	for _, origin := range h.originPatterns {
		if origin == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = h.originPatterns
	return opts
}

// authenticateRequest returns the token subject, or "" for an anonymous
// connection when auth is optional
func (h *Handler) authenticateRequest(c *gin.Context) (string, error) {
	token := auth.ExtractToken(c.GetHeader("Authorization"), c.Query("token"))
	if token == "" {
		if h.requireAuth {
			return "", auth.ErrNoToken
		}
		return "", nil
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// HandleMetrics returns WebSocket metrics (for monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":        h.hub.GetMetrics(),
		"connections":      h.hub.ConnectionCount(),
		"identified_users": h.hub.GetIdentifiedUsers(),
		"timestamp":        time.Now().UTC(),
	})
}

// HandleOnlineStatus checks if specific users are online
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	statuses := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.IsUserOnline(c.Request.Context(), userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// Shutdown gracefully shuts down the WebSocket handler
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// GetHub returns the hub for external access
func (h *Handler) GetHub() *Hub {
	return h.hub
}
