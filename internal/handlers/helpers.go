package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/fanout"
	"github.com/zfogg/beacon/internal/messaging"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/signaling"
	"github.com/zfogg/beacon/internal/util"
)

// respondError maps a domain error onto the API error envelope
func respondError(c *gin.Context, err error, resource string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		util.RespondNotFound(c, resource)
	case errors.Is(err, signaling.ErrNotOnline):
		util.RespondNotOnline(c)
	case errors.Is(err, fanout.ErrBlocked):
		util.RespondForbidden(c, "you cannot reach this user")
	case errors.Is(err, messaging.ErrNotMember):
		util.RespondForbidden(c, err.Error())
	case errors.Is(err, fanout.ErrInvalid),
		errors.Is(err, messaging.ErrInvalid),
		errors.Is(err, signaling.ErrNoTarget),
		errors.Is(err, signaling.ErrNoPayload):
		util.RespondBadRequest(c, err.Error())
	default:
		_ = c.Error(err)
		util.RespondInternalError(c, "failed to process "+resource)
	}
}

// displayName is the name used in notification texts
func displayName(user *models.User) string {
	if user == nil {
		return "Someone"
	}
	if user.Name != "" {
		return user.Name
	}
	if user.Username != "" {
		return user.Username
	}
	return "Someone"
}
