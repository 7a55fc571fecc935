// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"github.com/gin-gonic/gin"

	"almacen/internal/core/apperror"
	"almacen/internal/core/security"
)

// RequireRole lets the request through when the actor holds one of roles.
// Admins always pass. Document operations are guarded by the policy instead;
// this is for catalog maintenance.
func RequireRole(roles ...security.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		if actor.Role == security.RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}

		required := make([]string, len(roles))
		for i, r := range roles {
			required[i] = string(r)
		}
		_ = c.Error(
			apperror.NewForbidden("insufficient permissions").
				WithDetail("required_roles", required).
				WithDetail("role", string(actor.Role)),
		)
		c.Abort()
	}
}
