package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests to
// requestsPerMinute per client. Clients presenting an API key in
// apiKeyHeader are counted per key; everyone else per IP address. A
// non-positive limit disables the middleware.
func RateLimit(requestsPerMinute int, apiKeyHeader string) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if apiKeyHeader == "" {
		apiKeyHeader = DefaultAPIKeyHeader
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if key := r.Header.Get(apiKeyHeader); key != "" {
				return "key:" + key, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeAuthError(w, http.StatusTooManyRequests, "Rate limit exceeded, retry later")
		}),
	)
}
