package core

import "context"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTenant  Role = "tenant"
	RoleEndUser Role = "end_user"
	RoleSystem  Role = "system"
)

// Actor identifies who is driving a unit of work.
type Actor struct {
	Role     Role
	ID       string
	TenantID string
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// SystemActor is the actor background jobs and the CLI run as.
func SystemActor(id string) Actor {
	return Actor{Role: RoleSystem, ID: id}
}

// ActorFrom returns the actor stored in ctx. Without one it returns the zero
// Actor, which has no role and may manage nothing.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{}
}

// CanManageTenant reports whether the actor may act on resources of tenantID.
func (a Actor) CanManageTenant(tenantID string) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleTenant:
		return a.TenantID == tenantID
	}
	return false
}
