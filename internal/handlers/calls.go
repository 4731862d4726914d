package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/util"
)

type initiateCallRequest struct {
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer"`
}

// InitiateCall relays an SDP offer to a connected user as call-made
// POST /api/v1/calls/initiate
func (h *Handlers) InitiateCall(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	if err := h.relay.CallUser(c.Request.Context(), userID, req.To, req.Offer); err != nil {
		respondError(c, err, "call")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call initiated"})
}
