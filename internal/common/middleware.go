package common

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "role"
)

// AuthMiddleware validates the Bearer token and injects the caller's
// identity into the request context. Tokens may also arrive as a query
// parameter for the SSE event stream, where browsers cannot set headers.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		if auth := r.Header.Get("Authorization"); auth != "" {
			parts := strings.Fields(auth)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				http.Error(w, "invalid auth header", http.StatusUnauthorized)
				return
			}
			tokenString = parts[1]
		} else if tok := r.URL.Query().Get("token"); tok != "" {
			tokenString = tok
		}

		if tokenString == "" {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		claims, err := ValidToken(tokenString)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerID returns the authenticated user id injected by AuthMiddleware.
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserID).(string)
	return id
}

func CallerRole(ctx context.Context) Role {
	role, _ := ctx.Value(ctxRole).(string)
	return Role(role)
}
