package middlewares

import (
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// correlation id for the whole request
		correlationId := c.Request.Header.Get("x-correlation-id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)

		token := c.Request.Header.Get("token")
		if token == "" {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		username, err := config.GetRedisValue(ctx, "Token:"+token)
		if err != nil || username == "" {
			if err != nil && err != redis.Nil {
				config.LogError(config.GetLogger(), "Middleware", "SessionMiddleware", "redis token lookup failed", nil, err)
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx = context.WithValue(ctx, utils.ContextKeyToken, token)
		ctx = context.WithValue(ctx, utils.ContextKeyUsername, username)

		if businessId := c.Request.Header.Get("business-id"); businessId != "" {
			ctx = utils.SetBusinessIdInContext(ctx, businessId)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
