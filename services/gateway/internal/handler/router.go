package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intelliguard/intelliguard/pkg/health"
	pkgmiddleware "github.com/intelliguard/intelliguard/pkg/middleware"
	gwmiddleware "github.com/intelliguard/intelliguard/services/gateway/internal/middleware"
	"github.com/intelliguard/intelliguard/services/gateway/internal/proxy"
)

// Deps are the collaborators of the gateway router.
type Deps struct {
	Proxy       *proxy.ServiceProxy
	Payments    *PaymentHandler
	Tokens      *gwmiddleware.TokenParser
	RateLimiter *gwmiddleware.RateLimiter
	Health      *health.Handler
	Logger      *slog.Logger
}

// Options are the router's optional surfaces.
type Options struct {
	CORS                pkgmiddleware.CORSConfig
	MetricsAllowedCIDRs []string
	PprofAllowedCIDRs   []string
}

// NewRouter creates a chi router with global middleware, health endpoints,
// the payment endpoint and proxy routes to the user service.
func NewRouter(d Deps, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(pkgmiddleware.CORS(opts.CORS))
	r.Use(d.RateLimiter.Middleware(d.Logger))
	r.Use(pkgmiddleware.Recovery(d.Logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(pkgmiddleware.RequestLogging(d.Logger))
	r.Use(pkgmiddleware.PrometheusMetrics("gateway"))
	r.Use(pkgmiddleware.Tracing("gateway"))
	r.Use(pkgmiddleware.RequestLogger(d.Logger))

	r.Get("/health/live", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())

	r.With(pkgmiddleware.IPAllowlist(opts.MetricsAllowedCIDRs, d.Logger)).
		Handle("/metrics", promhttp.Handler())
	if len(opts.PprofAllowedCIDRs) > 0 {
		pkgmiddleware.RegisterPprof(r, opts.PprofAllowedCIDRs, d.Logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(gwmiddleware.JWTAuth(d.Tokens, d.Logger))
		r.Use(pkgmiddleware.RequestLogger(d.Logger))

		r.Post("/v1/initiate-payment", d.Payments.Initiate)

		user := d.Proxy.Handler("user")
		r.Handle("/v1/auth/*", user)
		r.Handle("/v1/users", user)
		r.Handle("/v1/users/*", user)
	})

	return r
}
