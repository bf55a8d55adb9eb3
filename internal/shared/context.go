package shared

import "context"

type actorContextKey struct{}

// ContextWithActorID stores the acting user's ID in context.
func ContextWithActorID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorIDFromContext extracts the acting user's ID from context. Zero means
// no actor was attached.
func ActorIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
