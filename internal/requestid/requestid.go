// Package requestid injects a correlation ID into every HTTP request,
// adapted from core/pkg/auth.RequestIDMiddleware.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey struct{}

const headerName = "X-Request-ID"

// Middleware injects a unique X-Request-ID into every request context and
// response header. If the client sends one, it is reused.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerName)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(headerName, id)

		ctx := context.WithValue(r.Context(), contextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext extracts the request ID, returning "" if none was set.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
