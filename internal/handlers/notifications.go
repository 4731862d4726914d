package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/util"
)

// GetNotifications lists every notification for the caller, newest first
// GET /api/v1/notifications
func (h *Handlers) GetNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	notifications, err := h.engine.ListAll(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": nonNil(notifications),
		"count":         len(notifications),
	})
}

// GetUnreadNotifications returns the unread set. A connected caller also gets it pushed.
// GET /api/v1/notifications/unread
func (h *Handlers) GetUnreadNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	unread, err := h.engine.GetUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": nonNil(unread),
		"unread":        len(unread),
	})
}

// GetNotificationPage returns the next "load more" page. ?reset=true starts over.
// GET /api/v1/notifications/page
func (h *Handlers) GetNotificationPage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if c.Query("reset") == "true" {
		h.engine.ResetPage(userID)
	}

	page, err := h.engine.GetPage(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": nonNil(page.Items),
		"exhausted":     page.Exhausted,
		"skip":          page.Skip,
	})
}

// MarkNotificationsRead marks all notifications as read
// POST /api/v1/notifications/read
func (h *Handlers) MarkNotificationsRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	updated, err := h.engine.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// MarkNotificationRead marks one of the caller's notifications as read
// PUT /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	if err := h.engine.MarkRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err, "notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "is_read": true})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

// NotifyFollowers sends the caller's message to everyone following them
// POST /api/v1/notifications/followers
func (h *Handlers) NotifyFollowers(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		util.RespondValidationError(c, "message", "message is required")
		return
	}

	result, err := h.engine.NotifyFollowers(c.Request.Context(), userID, req.Message)
	if err != nil {
		respondError(c, err, "notifications")
		return
	}
	c.JSON(http.StatusOK, fanoutSummary(result))
}

// fanoutSummary is the response body for endpoints that fan out to many users
func fanoutSummary(result *fanout.Result) gin.H {
	return gin.H{
		"notified": len(result.Persisted),
		"pushed":   result.Pushed,
		"skipped":  nonNil(result.Skipped),
		"failed":   nonNil(result.Failed),
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
