// Package auth provides authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userIDContextKey   contextKey = "user_id"
	operatorContextKey contextKey = "operator"
)

// UserID retrieves the authenticated user ID from the context.
//
// Returns uuid.Nil and false if no user is authenticated.
//
// Usage:
//
//	userID, ok := auth.UserID(r.Context())
//	if !ok {
//	    // Handle unauthenticated request
//	}
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// UserIDFromRequest is a convenience wrapper around UserID.
func UserIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	return UserID(r.Context())
}

// SetUserID stores the authenticated user ID in the context.
func SetUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, id)
}

// Operator returns the operator name set by the admin middleware, or "".
func Operator(ctx context.Context) string {
	name, _ := ctx.Value(operatorContextKey).(string)
	return name
}

// SetOperator stores the authenticated operator name in the context.
func SetOperator(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operatorContextKey, name)
}
