// Package middleware contains HTTP middleware for the Kinship API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/kinship/internal/auth"
	"github.com/DukeRupert/kinship/internal/handler"
	"github.com/google/uuid"
)

// UserIDHeader carries the authenticated user ID. The upstream gateway
// terminates sessions and sets it; clients cannot reach the API directly.
const UserIDHeader = "X-User-ID"

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware resolves the caller's identity.
type AuthMiddleware struct {
	logger *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{logger: logger}
}

// WithUser reads the user ID header and stores it in the request context.
// Requests without a valid header continue anonymously.
//
// The user ID can be retrieved in handlers using:
//
//	userID, ok := auth.UserID(r.Context())
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			m.logger.Warn("ignoring malformed user id header", "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUserID(r.Context(), id)))
	})
}

// RequireUser rejects requests without an authenticated user with 401.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserID(r.Context()); !ok {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw.Handler, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/subscription", stack(subscriptionHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
)
