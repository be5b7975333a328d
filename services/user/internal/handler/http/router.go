package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intelliguard/intelliguard/pkg/health"
	"github.com/intelliguard/intelliguard/pkg/middleware"
	"github.com/intelliguard/intelliguard/services/user/internal/service"
)

// RouterConfig holds the router's optional surfaces.
type RouterConfig struct {
	CORS       middleware.CORSConfig
	PprofCIDRs []string
}

// NewRouter creates a chi router with all user service routes registered.
func NewRouter(
	authService *service.AuthService,
	userService *service.UserService,
	validateToken middleware.TokenValidator,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("user"))
	r.Use(middleware.PrometheusMetrics("user"))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	authHandler := NewAuthHandler(authService, logger)
	userHandler := NewUserHandler(userService, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/verify-email", authHandler.VerifyEmail)

		r.With(middleware.Auth(validateToken), middleware.RequestLogger(logger)).
			Post("/logout", authHandler.Logout)
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(middleware.Auth(validateToken))
		r.Use(middleware.RequestLogger(logger))

		r.Get("/", userHandler.List)
		r.Get("/me", userHandler.Me)
		r.Get("/{id}", userHandler.Get)
	})

	return r
}
