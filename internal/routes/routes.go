package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/auth"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/handlers"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/metrics"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/middleware"
	pkghttp "github.com/JPdumas08/WebDev1.2-sub001/pkg/http"
	"github.com/go-chi/chi/v5"
)

// HealthChecker reports whether the account store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	guard *auth.SessionGuard,
	rateLimitConfig middleware.RateLimitConfig,
	health HealthChecker,
	m *metrics.Metrics,
) {
	router.Get("/health", healthHandler(health))
	router.Handle("/metrics", m.Handler())

	// Session-backed routes
	router.Group(func(r chi.Router) {
		r.Use(guard.LoadSession)

		// HandleFunc so the handlers answer unsupported methods themselves
		r.With(middleware.RateLimitByIP(rateLimitConfig)).HandleFunc("/login", authHandler.Login)
		r.HandleFunc("/logout", authHandler.Logout)
		r.Get("/csrf-token", authHandler.CSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(guard.RequireSession)
			r.Get("/session", authHandler.Session)
		})
	})
}

func healthHandler(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := health.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Database: "down"})
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, healthResponse{Status: "healthy", Database: "up"})
	}
}
