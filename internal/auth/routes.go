package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers authentication routes. The login limiter keys on
// client IP so one address cannot brute-force tokens.
func RegisterRoutes(r chi.Router, handler *AuthHandler, loginLimiter func(next http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		// POST /api/auth/register - Create a mailbox account
		r.Post("/register", handler.Register)

		// POST /api/auth/login - Exchange an API token for a JWT
		r.With(loginLimiter).Post("/login", handler.Login)
	})
}
