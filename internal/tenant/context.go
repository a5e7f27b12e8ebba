package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a tool: which organization it acts
// in, who it is, and which role it holds there.
type Actor struct {
	OrgID  uuid.UUID `json:"org_id"`
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

func IDFromContext(ctx context.Context) uuid.UUID {
	if a, ok := ActorFromContext(ctx); ok {
		return a.OrgID
	}
	return uuid.Nil
}
