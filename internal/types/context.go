package types

import "context"

// Role is the marketplace role attached to an account.
type Role string

const (
	RoleMember   Role = "member"
	RoleProvider Role = "provider"
	RoleVenue    Role = "venue"
)

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeAccount ActorType = "account"
	ActorTypeService ActorType = "service"
)

// Actor represents the authenticated entity performing an operation.
type Actor struct {
	ID   string // account id for ActorTypeAccount, service name otherwise
	Type ActorType
	Role Role
}

// IsService reports whether the actor is an internal caller.
func (a Actor) IsService() bool {
	return a.Type == ActorTypeService
}

// Context Keys
type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
