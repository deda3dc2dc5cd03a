package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware caps the request context. Cancellation is
// cooperative: handlers must observe ctx.Done(), which the model client
// does on its upstream call.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
