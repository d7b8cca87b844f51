package shared

import "context"

type contextKey string

const (
	actorKey     contextKey = "aegis.actor"
	requestIDKey contextKey = "aegis.request_id"
)

// ContextWithActor attaches the authenticated actor ID to the context.
func ContextWithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// ActorFromContext returns the authenticated actor ID, or "" when absent.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithRequestID attaches a request correlation ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request correlation ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
