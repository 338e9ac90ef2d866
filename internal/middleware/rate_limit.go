package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/authcore/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitByIP throttles requests per client IP in front of the credential
// endpoints. It is a coarse, in-process flood guard; per-account limits live
// in the security core's shared store.
func RateLimitByIP(requestsPerMinute int, ip *pkghttp.ClientIPResolver) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ip.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many requests")
		}),
	)
}
