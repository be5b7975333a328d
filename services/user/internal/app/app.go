package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/intelliguard/intelliguard/pkg/clock"
	"github.com/intelliguard/intelliguard/pkg/database"
	"github.com/intelliguard/intelliguard/pkg/health"
	pkgkafka "github.com/intelliguard/intelliguard/pkg/kafka"
	"github.com/intelliguard/intelliguard/pkg/middleware"
	"github.com/intelliguard/intelliguard/pkg/tracing"
	"github.com/intelliguard/intelliguard/services/user/internal/auth"
	"github.com/intelliguard/intelliguard/services/user/internal/config"
	"github.com/intelliguard/intelliguard/services/user/internal/event"
	handler "github.com/intelliguard/intelliguard/services/user/internal/handler/http"
	"github.com/intelliguard/intelliguard/services/user/internal/password"
	"github.com/intelliguard/intelliguard/services/user/internal/repository/postgres"
	"github.com/intelliguard/intelliguard/services/user/internal/service"
	"github.com/intelliguard/intelliguard/services/user/internal/sweeper"
	"github.com/intelliguard/intelliguard/services/user/migrations"
)

// App wires together all dependencies and runs the user service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	sweeper        *sweeper.Sweeper
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracingCfg := cfg.Tracing
	tracingCfg.ServiceName = "user"
	tracingCfg.Environment = cfg.Environment
	tracerShutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.Postgres.Host),
		slog.Int("port", cfg.Postgres.Port),
		slog.String("database", cfg.Postgres.DBName),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "user"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	hasher, err := password.New(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	// Build the dependency graph.
	clk := clock.System()
	tracer := database.NewQueryTracer(cfg.SlowQueryThreshold, logger)
	userRepo := postgres.NewUserRepository(pool, tracer)
	tokenRepo := postgres.NewRefreshTokenRepository(pool, tracer)
	signer := auth.NewJWTSigner(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessExpiry, clk)

	authService, err := service.NewAuthService(service.Deps{
		Users:  userRepo,
		Roles:  postgres.NewRoleRepository(pool),
		Tokens: tokenRepo,
		Hasher: hasher,
		Signer: signer,
		Clock:  clk,
		Events: event.NewProducer(producer, logger),
		Logger: logger,
	}, cfg.Service())
	if err != nil {
		pool.Close()
		return nil, err
	}
	userService := service.NewUserService(userRepo)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(authService, userService, signer.Validator(), healthHandler, logger, handler.RouterConfig{
		CORS:       corsCfg,
		PprofCIDRs: cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		producer:       producer,
		sweeper:        sweeper.New(tokenRepo, userRepo, clk, cfg.TokenSweepInterval, logger),
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the sweeper and blocks until the context is
// canceled.
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

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweeper.Run(sweepCtx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. PostgreSQL pool
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

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
