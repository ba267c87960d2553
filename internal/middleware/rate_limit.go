package middleware

import (
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/JPdumas08/WebDev1.2-sub001/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds the per-client request limit for the login endpoint.
// It sits in front of the per-identifier throttle and caps raw request volume.
type RateLimitConfig struct {
	RequestsPerMinute int
	IPConfig          *pkghttp.IPConfig
	Logger            *slog.Logger
}

// DefaultLoginRateLimit returns the default request limit for /login (20 requests per minute)
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// Forwarding headers are honored only from trusted proxies.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if config.Logger != nil {
				config.Logger.Warn("request rate limit exceeded",
					slog.String("path", r.URL.Path),
					slog.String("client_ip", pkghttp.ExtractClientIP(r, config.IPConfig)),
				)
			}
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please slow down.")
		}),
	)
}
