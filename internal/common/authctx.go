package common

import "context"

type ctxKey string

const (
	userIDKey   ctxKey = "auth/user-id"
	usernameKey ctxKey = "auth/username"
)

// WithUser stores the authenticated user on the provided context.
func WithUser(ctx context.Context, id int64, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, id)
	return context.WithValue(ctx, usernameKey, username)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// Username returns the authenticated username, or "" for anonymous requests.
func Username(ctx context.Context) string {
	name, _ := ctx.Value(usernameKey).(string)
	return name
}
