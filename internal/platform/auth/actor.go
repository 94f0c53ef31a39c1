package auth

import "context"

// Roles recognised by the bed lifecycle.
const (
	RoleAdmin         = "admin"
	RoleBedManager    = "bed_manager"
	RoleWardStaff     = "ward_staff"
	RoleERStaff       = "er_staff"
	RoleCleaningStaff = "cleaning_staff"
)

// Actor is the already-authenticated caller of a lifecycle operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
	Ward string `json:"ward,omitempty"`
}

// System is the actor used by background jobs such as the expiry sweeper.
var System = Actor{ID: "system", Name: "System", Role: RoleAdmin}

// IsManager reports whether the actor may act on any ward's requests.
func (a Actor) IsManager() bool {
	return a.Role == RoleAdmin || a.Role == RoleBedManager
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored in ctx and whether one was set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
