package middleware

import (
	"context"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type ctxKey int

const (
	keyRequestID ctxKey = iota
	keyUserID
	keyRole
)

func value[T any](ctx context.Context, key ctxKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return zero
}

func with(ctx context.Context, key ctxKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, keyRequestID, id)
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	return value[string](ctx, keyRequestID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return with(ctx, keyUserID, userID)
}

// UserIDFromContext is empty for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	return value[string](ctx, keyUserID)
}

func WithRole(ctx context.Context, role enums.ActorRole) context.Context {
	return with(ctx, keyRole, role)
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	return value[enums.ActorRole](ctx, keyRole)
}
