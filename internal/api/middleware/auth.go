package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zawnaing-2024/vmaster/internal/auth"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

const ActorKey = "actor"

// AuthRequired verifies the bearer token and stores the actor both in the
// gin context and in the request context seen by the services.
func AuthRequired(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			c.Abort()
			return
		}

		actor, err := issuer.Parse(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(ActorKey, actor)
		c.Set("tenant_id", actor.TenantID)
		c.Request = c.Request.WithContext(core.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// ActiveChecker reports whether the actor's tenant or end user is still
// allowed in.
type ActiveChecker interface {
	CheckActive(ctx context.Context, actor core.Actor) error
}

// RequireActive refuses tokens whose holder was suspended, disabled, expired
// or deleted after the token was issued.
func RequireActive(checker ActiveChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := checker.CheckActive(c.Request.Context(), Actor(c))
		switch {
		case err == nil:
			c.Next()
			return
		case errors.Is(err, core.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, core.ErrNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token holder no longer exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		c.Abort()
	}
}

// RequireRole rejects actors whose role is not listed.
func RequireRole(roles ...core.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		c.Abort()
	}
}

// Actor returns the authenticated actor. Requests that skipped AuthRequired
// get a zero actor with no role.
func Actor(c *gin.Context) core.Actor {
	if v, ok := c.Get(ActorKey); ok {
		if a, ok := v.(core.Actor); ok {
			return a
		}
	}
	return core.Actor{}
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
