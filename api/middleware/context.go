package middleware

import (
	"context"

	"github.com/angelmondragon/shopsphere-backend/pkg/outbox"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext returns the authenticated caller for event envelopes, or
// nil outside an authenticated request.
func ActorFromContext(ctx context.Context) *outbox.ActorRef {
	userID := UserIDFromContext(ctx)
	if userID == "" {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: RoleFromContext(ctx)}
}

// WithIdentity injects the caller into the context.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxRole, role)
}
