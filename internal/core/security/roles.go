// Package security provides the capability policy that decides which actor may
// run which operation on which entity.
package security

import (
	"context"

	appctx "almacen/internal/core/context"
	"almacen/internal/core/apperror"
)

// Role is the single warehouse role a user acts with.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleWarehouse  Role = "almacen"
	RoleDesigner   Role = "disenador"
	RoleSupervisor Role = "supervisor"
	RolePurchasing Role = "compras"
)

// KnownRoles lists every role the policy understands.
func KnownRoles() []Role {
	return []Role{RoleAdmin, RoleWarehouse, RoleDesigner, RoleSupervisor, RolePurchasing}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range KnownRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// Actor is the identity every entitlement check is made against.
type Actor struct {
	UserID string
	Role   Role
}

// Validate checks that the actor is identified and carries a known role.
func (a Actor) Validate() error {
	if a.UserID == "" {
		return apperror.NewValidation("actor id is required").WithDetail("field", "actor")
	}
	if !a.Role.Valid() {
		return apperror.NewValidation("unknown role").WithDetail("role", string(a.Role))
	}
	return nil
}

// ActorFromContext builds the Actor from the authenticated user in ctx.
func ActorFromContext(ctx context.Context) (Actor, error) {
	user := appctx.GetUser(ctx)
	if user == nil {
		return Actor{}, apperror.NewUnauthorized("authentication required")
	}
	actor := Actor{UserID: user.UserID, Role: Role(user.Role)}
	if err := actor.Validate(); err != nil {
		return Actor{}, err
	}
	return actor, nil
}
