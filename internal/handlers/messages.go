package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/messaging"
	"github.com/zfogg/beacon/internal/util"
)

type sendMessageRequest struct {
	ReceiverID  string `json:"receiver_id"`
	CommunityID string `json:"community_id"`
	Content     string `json:"content"`
	MediaURL    string `json:"media_url"`
}

// media validates the optional attachment
func (r sendMessageRequest) media(c *gin.Context) (*messaging.Media, bool) {
	if strings.TrimSpace(r.MediaURL) == "" {
		return nil, true
	}
	kind, ok := util.MediaTypeFromURL(r.MediaURL)
	if !ok {
		util.RespondValidationError(c, "media_url", "only jpg, jpeg, png, mp4 and mov attachments are supported")
		return nil, false
	}
	return &messaging.Media{URL: strings.TrimSpace(r.MediaURL), Type: kind}, true
}

// SendMessage sends a direct message
// POST /api/v1/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ReceiverID) == "" {
		util.RespondValidationError(c, "receiver_id", "receiver_id is required")
		return
	}
	media, ok := req.media(c)
	if !ok {
		return
	}

	msg, err := h.messages.SendDirect(c.Request.Context(), userID, req.ReceiverID, req.Content, media)
	if err != nil {
		respondError(c, err, "message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SendCommunityMessage sends a message to every member of a community
// POST /api/v1/messages/community
func (h *Handlers) SendCommunityMessage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.CommunityID) == "" {
		util.RespondValidationError(c, "community_id", "community_id is required")
		return
	}
	media, ok := req.media(c)
	if !ok {
		return
	}

	msg, err := h.messages.SendCommunity(c.Request.Context(), userID, req.CommunityID, req.Content, media)
	if err != nil {
		respondError(c, err, "community")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetConversation returns the direct messages between the caller and receiver_id
// GET /api/v1/messages/conversation?receiver_id=
func (h *Handlers) GetConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	messages, err := h.messages.Conversation(c.Request.Context(), userID, c.Query("receiver_id"))
	if err != nil {
		respondError(c, err, "conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": nonNil(messages)})
}

// GetGroupConversation returns a community's messages to its members
// GET /api/v1/messages/group/:id
func (h *Handlers) GetGroupConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	messages, err := h.messages.GroupConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": nonNil(messages)})
}

// MarkMessageRead flips the read flag of a message sent to the caller
// PUT /api/v1/messages/:id/read
func (h *Handlers) MarkMessageRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	msg, err := h.messages.MarkRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "message")
		return
	}
	c.JSON(http.StatusOK, msg)
}
