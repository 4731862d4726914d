package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/util"
	"go.uber.org/zap"
)

// AuthMiddleware validates the bearer token and sets user_id and username on
// the context. Tokens are accepted from the Authorization header or ?token=.
func AuthMiddleware(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.ExtractToken(c.GetHeader("Authorization"), c.Query("token"))

		claims, err := tokens.Validate(raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrNoToken) {
				msg = "no token provided"
			}
			logger.Log.Debug("Rejected request token",
				logger.WithIP(c.ClientIP()),
				zap.Error(err))
			util.RespondUnauthorized(c, msg)
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}
