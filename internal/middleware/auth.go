package middleware

import (
	"context"
	"errors"
	"strings"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AccountFinder interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// AuthMiddleware accepts a bearer token in the Authorization header, or a
// token query parameter for media players that cannot set headers.
func AuthMiddleware(cfg *config.Config, users AccountFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			logger.Log.Debug("JWT rejected", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		account, err := users.FindByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, util.ErrUserNotFound) {
				util.Unauthorized(c)
			} else {
				util.LogInternalError(c, err)
			}
			c.Abort()
			return
		}
		if !account.IsActive {
			util.HandleError(c, util.ErrAccountDisabled)
			c.Abort()
			return
		}

		c.Set(util.ContextUserKey, claims)
		c.Set(util.ContextAccountKey, account)
		c.Next()
	}
}
