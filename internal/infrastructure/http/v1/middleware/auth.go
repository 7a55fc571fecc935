package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"almacen/internal/core/apperror"
	appctx "almacen/internal/core/context"
	"almacen/internal/core/security"
)

// ActorKey is the gin context key holding the security.Actor of the request.
const ActorKey = "actor"

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth middleware validates JWT tokens and populates user context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		user, err := validator.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		ctx := appctx.WithUser(c.Request.Context(), user)
		actor, err := security.ActorFromContext(ctx)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)

		c.Set("user_id", user.UserID)
		c.Set(ActorKey, actor)

		c.Next()
	}
}

// GetActor returns the actor set by Auth.
func GetActor(c *gin.Context) (security.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return security.Actor{}, false
	}
	actor, ok := v.(security.Actor)
	return actor, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
