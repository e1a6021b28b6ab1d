// Package requesttime pins a single "now" per HTTP request so expiry checks,
// verification timestamps and audit events agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"fedcred/pkg/requestcontext"
)

// Middleware stamps each request with the wall clock in UTC.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps requests from now instead of the wall clock.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
