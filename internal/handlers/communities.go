package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/util"
)

// JoinCommunity adds the caller to a community, moves their live connection
// into its room and tells the other members and the admins
// POST /api/v1/communities/:id/join
func (h *Handlers) JoinCommunity(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	communityID := c.Param("id")

	community, err := h.directory.GetCommunity(ctx, communityID)
	if err != nil {
		respondError(c, err, "community")
		return
	}
	members, err := h.directory.MemberIDs(ctx, communityID)
	if err != nil {
		respondError(c, err, "community")
		return
	}
	if slices.Contains(members, userID) {
		c.JSON(http.StatusOK, gin.H{"community_id": community.ID, "joined": false})
		return
	}
	admins, err := h.directory.AdminIDs(ctx, communityID)
	if err != nil {
		respondError(c, err, "community")
		return
	}

	if err := h.directory.AddMember(ctx, communityID, userID, false); err != nil {
		respondError(c, err, "community")
		return
	}
	h.rooms.JoinUserRoom(ctx, userID, communityID)

	user, _ := h.directory.GetUser(ctx, userID)
	name := displayName(user)
	body := gin.H{"community_id": community.ID, "joined": true}

	// membership is already stored; fan-out failures are only recorded
	result, err := h.engine.NotifyCommunityMembers(ctx, communityID, userID, fmt.Sprintf("%s joined the community", name))
	if err != nil {
		_ = c.Error(err)
	} else {
		body["notified"] = len(result.Persisted)
	}
	owners, err := h.engine.NotifyOwners(ctx, userID, admins, fmt.Sprintf("%s joined the community \"%s\"", name, community.Name))
	if err != nil {
		_ = c.Error(err)
	} else {
		body["admins_notified"] = len(owners.Persisted)
	}
	c.JSON(http.StatusOK, body)
}

// LeaveCommunity removes the caller from a community. When the last admin
// leaves, the longest-standing remaining member becomes admin.
// POST /api/v1/communities/:id/leave
func (h *Handlers) LeaveCommunity(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	community, err := h.directory.GetCommunity(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "community")
		return
	}
	admins, err := h.directory.AdminIDs(ctx, community.ID)
	if err != nil {
		respondError(c, err, "community")
		return
	}

	err = h.directory.RemoveMember(ctx, community.ID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		util.RespondBadRequest(c, "you are not a member of this community")
		return
	}
	if err != nil {
		respondError(c, err, "community")
		return
	}
	h.rooms.LeaveUserRoom(ctx, userID, community.ID)

	body := gin.H{"community_id": community.ID, "left": true}
	if len(admins) != 1 || admins[0] != userID {
		c.JSON(http.StatusOK, body)
		return
	}

	remaining, err := h.directory.MemberIDs(ctx, community.ID)
	if err != nil {
		respondError(c, err, "community")
		return
	}
	if len(remaining) == 0 {
		c.JSON(http.StatusOK, body)
		return
	}

	newAdmin := remaining[0]
	if err := h.directory.AddMember(ctx, community.ID, newAdmin, true); err != nil {
		respondError(c, err, "community")
		return
	}
	body["new_admin"] = newAdmin

	text := fmt.Sprintf("You have been assigned as the new admin of the community \"%s\".", community.Name)
	if _, err := h.engine.NotifyUser(ctx, fanout.FromUser(userID), newAdmin, text); err != nil {
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, body)
}

// Announce sends an admin's announcement to every other member
// POST /api/v1/communities/:id/announce (community admins only)
func (h *Handlers) Announce(c *gin.Context) {
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

	result, err := h.engine.NotifyCommunityMembers(c.Request.Context(), c.Param("id"), userID, req.Message)
	if err != nil {
		respondError(c, err, "community")
		return
	}
	c.JSON(http.StatusOK, fanoutSummary(result))
}

type reportRequest struct {
	Reason string `json:"reason"`
}

// ReportCommunity notifies the community's admins
// POST /api/v1/communities/:id/report
func (h *Handlers) ReportCommunity(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		util.RespondValidationError(c, "reason", "reason is required")
		return
	}

	community, err := h.directory.GetCommunity(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "community")
		return
	}
	admins, err := h.directory.AdminIDs(ctx, community.ID)
	if err != nil {
		respondError(c, err, "community")
		return
	}

	user, _ := h.directory.GetUser(ctx, userID)
	text := fmt.Sprintf("%s reported the community \"%s\": %s", displayName(user), community.Name, reason)
	result, err := h.engine.NotifyOwners(ctx, userID, admins, text)
	if err != nil {
		respondError(c, err, "report")
		return
	}
	c.JSON(http.StatusAccepted, fanoutSummary(result))
}
