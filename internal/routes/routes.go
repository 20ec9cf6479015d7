package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/BradenHooton/loginguard/internal/models"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// Dependencies are the handlers and collaborators the router needs.
type Dependencies struct {
	AuthHandler    *handlers.AuthHandler
	AdminHandler   *handlers.AdminHandler
	HealthHandler  *handlers.HealthHandler
	TokenValidator auth.TokenValidator
	RateLimits     []config.RateRule
	IPConfig       *pkghttp.IPConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.HealthHandler.Health)
	router.Handle("/metrics", promhttp.Handler())

	// Public auth routes, each with its own per-client rate budget
	limited := func() chi.Router {
		return router.With(middleware.RateLimitByIP(deps.RateLimits, deps.IPConfig))
	}
	limited().Post("/auth/login", deps.AuthHandler.Login)
	limited().Get("/auth/captcha/status", deps.AuthHandler.CaptchaStatus)
	limited().Post("/auth/mfa/enroll", deps.AuthHandler.EnrollMFA)
	limited().Post("/auth/mfa/verify", deps.AuthHandler.VerifyMFA)
	limited().Post("/auth/refresh", deps.AuthHandler.RefreshToken)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.TokenValidator))

		r.Get("/auth/session", deps.AuthHandler.Session)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/admin/ping", deps.AdminHandler.Ping)
		})
	})
}
