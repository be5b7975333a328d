package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intelliguard/intelliguard/pkg/health"
	"github.com/intelliguard/intelliguard/pkg/middleware"
)

// RouterConfig limits who may scrape metrics and reach pprof.
type RouterConfig struct {
	MetricsCIDRs []string
	PprofCIDRs   []string
}

// NewRouter creates the fraud service's operational router. The service has
// no public API; it only reports health and metrics.
func NewRouter(healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("fraud"))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.With(middleware.IPAllowlist(cfg.MetricsCIDRs, logger)).Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	return r
}
