package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/readbook-app/readbook-api/internal/auth"
	"github.com/readbook-app/readbook-api/internal/config"
	"github.com/readbook-app/readbook-api/internal/httputil"
	"github.com/readbook-app/readbook-api/internal/logging"
	"github.com/readbook-app/readbook-api/internal/middleware"
	"github.com/readbook-app/readbook-api/internal/user"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	cfg *config.Config,
	authHandler *auth.Handler,
	userHandler *user.Handler,
	authMiddleware *middleware.Middleware,
	logger *logging.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	// Global middleware
	r.Use(SecurityHeaders)               // Security headers on all responses
	r.Use(chimiddleware.Recoverer)       // Recover from panics
	r.Use(chimiddleware.RequestID)       // Add request ID
	r.Use(chimiddleware.RealIP)          // Set RemoteAddr to real IP
	r.Use(logging.RequestLogger(logger)) // Structured logging with request context
	r.Use(chimiddleware.Compress(5))     // Compress responses

	r.Get("/health", handleHealth)

	r.Route(cfg.Server.APIPrefix, func(r chi.Router) {
		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/verify-otp", authHandler.VerifyOTP)
			r.Post("/resend-otp", authHandler.ResendOTP)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh-token", authHandler.Refresh)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
			r.Post("/logout", authHandler.Logout)

			// Requires a valid access token
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Post("/change-password", authHandler.ChangePassword)
			})
		})

		// User routes (require authentication)
		r.Route("/users", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/me", userHandler.Me)
			r.Put("/{userId}", userHandler.Update)
			r.Get("/{userId}/favorites", userHandler.Favorites)
			r.Post("/{userId}/favorites/{bookId}", userHandler.AddFavorite)
			r.Delete("/{userId}/favorites/{bookId}", userHandler.RemoveFavorite)
		})

		// Admin routes (require authentication + rights)
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.With(authMiddleware.RequireRights("getUsers")).Get("/users", userHandler.List)
			r.With(authMiddleware.RequireRights("deleteUser")).Delete("/users/{userId}", userHandler.Delete)
		})
	})

	return r
}

// handleHealth is a simple health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "api is running"}, http.StatusOK)
}
