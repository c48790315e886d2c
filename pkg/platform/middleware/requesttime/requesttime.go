// Package requesttime pins a single "now" per request so document timestamps,
// expiry checks and audit entries within one request agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"signet/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
