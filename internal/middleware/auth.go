package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	// RequestIDKey holds the id set by RequestID.
	RequestIDKey contextKey = "request_id"
)

// SessionChecker reports whether the local app holds a backend token.
type SessionChecker interface {
	HasToken() bool
}

// RequireSession rejects requests with 401 while nobody is logged in.
// Paths starting with one of public pass through.
func RequireSession(session SessionChecker, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range public {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if !session.HasToken() {
				writeError(w, http.StatusUnauthorized, "not logged in")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetRequestID extracts the request id from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
