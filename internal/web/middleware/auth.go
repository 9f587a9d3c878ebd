package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const adminTokenContextKey contextKey = "admin-token"

// AdminTokenHeader carries the operator's admin token.
const AdminTokenHeader = "X-Admin-Token"

// Gate decides whether a token grants admin access.
type Gate interface {
	Admit(token string) bool
}

// tokenFromRequest reads the admin token from the X-Admin-Token header,
// falling back to a bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(AdminTokenHeader)); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// AdminToken is middleware that puts the request's admin token, if any,
// into the context. It does not reject anything.
func AdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), adminTokenContextKey, tokenFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin is middleware that rejects requests the gate does not admit
func RequireAdmin(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if !gate.Admit(token) {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "admin access required"}`, http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), adminTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminToken retrieves the admin token from the request context
func GetAdminToken(ctx context.Context) string {
	token, _ := ctx.Value(adminTokenContextKey).(string)
	return token
}

// SetAdminTokenInContext adds an admin token to the context.
// This is primarily for testing - use AdminToken middleware in production.
func SetAdminTokenInContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, adminTokenContextKey, token)
}
