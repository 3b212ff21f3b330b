package handler

import (
	"log"
	"time"

	"goodstewards/internal/model"
	"goodstewards/internal/repository"
	"goodstewards/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const actorContextKey = "actor"

func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-User-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// IdentityMiddleware resolves the acting user from the X-User-ID
// header left by the auth gateway and injects an Actor into the
// request context. Token issuance and verification live upstream.
func IdentityMiddleware(db *gorm.DB) gin.HandlerFunc {
	userRepo := repository.NewUserRepository(db)

	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			response.Error(c, response.CodeUnauthorized, "missing X-User-ID header")
			c.Abort()
			return
		}

		user, err := userRepo.GetByID(c.Request.Context(), userID)
		if err != nil {
			response.Error(c, response.CodeUnauthorized, "unknown user")
			c.Abort()
			return
		}

		c.Set(actorContextKey, model.Actor{
			UserID:         user.ID,
			OrganizationID: user.OrganizationID,
			Role:           user.Role,
		})
		c.Next()
	}
}

func currentActor(c *gin.Context) model.Actor {
	actor, _ := c.Get(actorContextKey)
	return actor.(model.Actor)
}
