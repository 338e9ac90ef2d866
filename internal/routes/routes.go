package routes

import (
	"github.com/BradenHooton/authcore/internal/auth"
	"github.com/BradenHooton/authcore/internal/handlers"
	"github.com/BradenHooton/authcore/internal/middleware"
	pkghttp "github.com/BradenHooton/authcore/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminRole is the identity role allowed on /admin routes
const AdminRole = "admin"

// Deps groups what the route table needs
type Deps struct {
	AuthHandler         *handlers.AuthHandler
	SecurityHandler     *handlers.SecurityHandler
	Verifier            *auth.TokenVerifier
	ClientIP            *pkghttp.ClientIPResolver
	IPRequestsPerMinute int
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, d Deps) {
	// Public credential endpoints, throttled per client IP
	router.Group(func(r chi.Router) {
		if d.IPRequestsPerMinute > 0 {
			r.Use(middleware.RateLimitByIP(d.IPRequestsPerMinute, d.ClientIP))
		}

		r.Post("/auth/captcha", d.AuthHandler.Captcha)
		r.Post("/auth/login", d.AuthHandler.Login)
		r.Post("/auth/register/start", d.AuthHandler.StartRegistration)
		r.Post("/auth/register", d.AuthHandler.Register)
		r.Post("/auth/verify-email", d.AuthHandler.VerifyEmail)
		r.Post("/auth/forgot-password", d.AuthHandler.ForgotPassword)
		r.Post("/auth/reset-password", d.AuthHandler.ResetPassword)
	})

	// Protected routes - bearer identity required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity(d.Verifier))

		r.Post("/auth/logout", d.AuthHandler.Logout)

		r.Get("/me/devices", d.SecurityHandler.MyDevices)
		r.Delete("/me/devices/{deviceID}", d.SecurityHandler.RemoveMyDevice)
		r.Get("/me/events", d.SecurityHandler.MyEvents)
		r.Get("/me/alerts", d.SecurityHandler.MyAlerts)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(AdminRole))
			r.Get("/admin/security/alerts", d.SecurityHandler.ListAlerts)
			r.Get("/admin/security/events", d.SecurityHandler.ListEvents)
			r.Get("/admin/users/{id}/devices", d.SecurityHandler.UserDevices)
		})
	})
}
