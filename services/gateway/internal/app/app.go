package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/intelliguard/intelliguard/pkg/health"
	"github.com/intelliguard/intelliguard/pkg/httpclient"
	pkgkafka "github.com/intelliguard/intelliguard/pkg/kafka"
	pkgmiddleware "github.com/intelliguard/intelliguard/pkg/middleware"
	"github.com/intelliguard/intelliguard/pkg/tracing"
	"github.com/intelliguard/intelliguard/services/gateway/internal/config"
	"github.com/intelliguard/intelliguard/services/gateway/internal/handler"
	gwmiddleware "github.com/intelliguard/intelliguard/services/gateway/internal/middleware"
	"github.com/intelliguard/intelliguard/services/gateway/internal/proxy"
)

const rateLimitVisitorTTL = 3 * time.Minute

// App wires together all dependencies and runs the API gateway.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	producer       *pkgkafka.Producer
	rateLimiter    *gwmiddleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing the reverse proxy,
// the payment publisher and the HTTP router.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracingCfg := cfg.Tracing
	tracingCfg.ServiceName = "gateway"
	tracingCfg.Environment = cfg.Environment
	tracerShutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	sp, err := proxy.NewServiceProxy(map[string]string{"user": cfg.UserServiceURL}, proxy.DefaultTimeouts(), logger)
	if err != nil {
		return nil, fmt.Errorf("service proxy: %w", err)
	}

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("payment_topic", cfg.PaymentTopic),
	)

	// Upstream readiness goes through a breaker so a dead user service is
	// not hammered by probes.
	userProbe := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("user-service"),
		logger,
	)
	userHealthURL := strings.TrimRight(cfg.UserServiceURL, "/") + "/health/live"

	healthHandler := health.NewHandler()
	healthHandler.RegisterNonCritical("user-service", func(ctx context.Context) error {
		return userProbe.Probe(ctx, userHealthURL)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	rateLimiter := gwmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimitVisitorTTL, nil)

	corsCfg := pkgmiddleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.ExposedHeaders = []string{pkgmiddleware.CorrelationIDHeader, gwmiddleware.HeaderUserID}

	router := handler.NewRouter(handler.Deps{
		Proxy:       sp,
		Payments:    handler.NewPaymentHandler(producer, cfg.PaymentTopic, logger),
		Tokens:      gwmiddleware.NewTokenParser(cfg.JWTSecret, cfg.JWTIssuer),
		RateLimiter: rateLimiter,
		Health:      healthHandler,
		Logger:      logger,
	}, handler.Options{
		CORS:                corsCfg,
		MetricsAllowedCIDRs: cfg.MetricsAllowedCIDRs,
		PprofAllowedCIDRs:   cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		producer:       producer,
		rateLimiter:    rateLimiter,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go a.rateLimiter.Run(limiterCtx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the gateway in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
