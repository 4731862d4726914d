package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/util"
)

// AdminLookup lists a community's admins
type AdminLookup interface {
	GetCommunity(ctx context.Context, communityID string) (*models.Community, error)
	AdminIDs(ctx context.Context, communityID string) ([]string, error)
}

// RequireCommunityAdmin ensures the authenticated user administers the
// community named by the :id route parameter. Must run after AuthMiddleware.
func RequireCommunityAdmin(directory AdminLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := util.GetUserIDFromContext(c)
		if !ok {
			c.Abort()
			return
		}

		communityID := c.Param("id")
		if _, err := directory.GetCommunity(c.Request.Context(), communityID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				util.RespondNotFound(c, "community")
			} else {
				util.RespondInternalError(c, "failed to load community")
			}
			c.Abort()
			return
		}

		admins, err := directory.AdminIDs(c.Request.Context(), communityID)
		if err != nil {
			util.RespondInternalError(c, "failed to load community admins")
			c.Abort()
			return
		}
		for _, id := range admins {
			if id == userID {
				c.Next()
				return
			}
		}

		util.RespondForbidden(c, "community admin access required")
		c.Abort()
	}
}
