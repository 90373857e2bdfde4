// Package actor carries the acting identity of a request through its context.
package actor

import "context"

type contextKey int

const actorKey contextKey = 0

// Inject returns a context carrying the acting user id.
func Inject(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// From returns the acting user id, or "" when none was injected.
func From(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey).(string); ok {
		return v
	}
	return ""
}
