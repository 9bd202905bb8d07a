package httputil

import "context"

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID stamps the authenticated user id onto the request context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user id, or "" when the request carried
// no identity.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
