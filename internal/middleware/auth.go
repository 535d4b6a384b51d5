package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/readbook-app/readbook-api/internal/config"
	"github.com/readbook-app/readbook-api/internal/httputil"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	UserIDContextKey ContextKey = "user_id"
	RoleContextKey   ContextKey = "user_role"
)

// TokenVerifier validates an access token and reports who presented it.
type TokenVerifier interface {
	VerifyAccess(token string) (userID int64, role string, err error)
}

// Middleware guards protected routes with token and role checks.
type Middleware struct {
	verifier TokenVerifier
}

func NewMiddleware(verifier TokenVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// RequireAuth validates the Bearer access token and injects the caller's ID
// and role into the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondError(w, "missing authentication", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.RespondError(w, "invalid authorization header format", http.StatusUnauthorized)
			return
		}

		userID, role, err := m.verifier.VerifyAccess(parts[1])
		if err != nil {
			httputil.RespondError(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		ctx = context.WithValue(ctx, RoleContextKey, role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRights rejects callers whose role does not grant every listed right.
// Must run after RequireAuth.
func (m *Middleware) RequireRights(rights ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok {
				httputil.RespondError(w, "missing authentication", http.StatusUnauthorized)
				return
			}

			granted := config.RoleRights(role)
			for _, right := range rights {
				if !slices.Contains(granted, right) {
					httputil.RespondError(w, "insufficient permissions", http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(int64)
	return userID, ok
}

// RoleFromContext extracts the authenticated user's role from the request context.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleContextKey).(string)
	return role, ok
}
