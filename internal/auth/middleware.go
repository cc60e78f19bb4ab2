// Package auth — middleware.go provides the context keys a resolved identity
// is carried under once a caller has validated a session by some other means
// (for the gateway, via an Identify frame rather than an HTTP header).
package auth

import "context"

type contextKey string

const (
	// ContextKeyUserID is the context key for the authenticated user's ID.
	ContextKeyUserID contextKey = "user_id"
	// ContextKeySessionID is the context key for the current session token.
	ContextKeySessionID contextKey = "session_id"
)

// UserIDFromContext retrieves the authenticated user ID from the request context.
// Returns empty string if no user is authenticated.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyUserID).(string)
	return v
}

// SessionIDFromContext retrieves the session ID from the request context.
// Returns empty string if not present.
func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeySessionID).(string)
	return v
}
