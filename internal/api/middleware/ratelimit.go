package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/api/helpers"
)

// RateLimit builds a middleware enforcing the named bucket's budget for
// the caller's real IP, as resolved by helpers.GetRealIP.
func RateLimit(guard *access.Guard, bucket access.Bucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := helpers.GetRealIP(r).String()
			if err := guard.CheckRateLimit(r.Context(), bucket, ip); err != nil {
				var rle *access.RateLimitError
				if errors.As(err, &rle) {
					slog.Warn("rate_limit_exceeded", "ip", ip, "bucket", bucket, "path", r.URL.Path)
					w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
					return
				}
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
