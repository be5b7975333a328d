package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/intelliguard/intelliguard/pkg/database"
	"github.com/intelliguard/intelliguard/pkg/health"
	pkgkafka "github.com/intelliguard/intelliguard/pkg/kafka"
	"github.com/intelliguard/intelliguard/pkg/tracing"
	"github.com/intelliguard/intelliguard/services/fraud/internal/config"
	"github.com/intelliguard/intelliguard/services/fraud/internal/event"
	handler "github.com/intelliguard/intelliguard/services/fraud/internal/handler/http"
)

// App wires together all dependencies and runs the fraud-scoring service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	redis          *redis.Client
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance: the idempotency store, the
// payment consumer with its dead-letter producer and the HTTP router.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracingCfg := cfg.Tracing
	tracingCfg.ServiceName = "fraud"
	tracingCfg.Environment = cfg.Environment
	tracerShutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	var (
		redisClient *redis.Client
		store       pkgkafka.IdempotencyStore
	)
	switch cfg.IdempotencyStore {
	case config.StoreMemory:
		store = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	default:
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			_ = tracerShutdown(ctx)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr))
		store = pkgkafka.NewRedisIdempotencyStore(redisClient, cfg.ConsumerGroup, cfg.IdempotencyTTL)
	}

	var dlq *pkgkafka.DLQProducer
	var deadLetterer pkgkafka.DeadLetterer
	if cfg.DLQEnabled {
		dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		deadLetterer = dlq
	}

	reader := pkgkafka.NewReader(pkgkafka.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.ConsumerGroup,
		Topic:   cfg.PaymentTopic,
	})
	consumer := event.NewPaymentConsumer(
		reader,
		event.ConsumerConfig{
			Topic:        cfg.PaymentTopic,
			Group:        cfg.ConsumerGroup,
			RetryBackoff: cfg.RetryBackoff,
		},
		event.NewPaymentHandler(event.NewLogSink(logger), logger),
		store,
		deadLetterer,
		logger,
	)
	logger.Info("payment consumer initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("topic", cfg.PaymentTopic),
		slog.String("group", cfg.ConsumerGroup),
		slog.String("idempotency_store", cfg.IdempotencyStore),
		slog.Bool("dlq", cfg.DLQEnabled),
	)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(healthHandler, logger, handler.RouterConfig{
		MetricsCIDRs: cfg.MetricsAllowedCIDRs,
		PprofCIDRs:   cfg.PprofAllowedCIDRs,
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
		redis:          redisClient,
		consumer:       consumer,
		dlq:            dlq,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the payment consumer, and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := a.consumer.Start(consumerCtx); err != nil {
			a.logger.Error("consumer stopped with error",
				slog.String("topic", a.consumer.Topic()),
				slog.String("error", err.Error()),
			)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopConsumer()
	<-consumerDone

	if err := a.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Shutdown gracefully stops the service in the correct order:
// 1. HTTP server
// 2. Tracer
// 3. DLQ producer
// 4. Redis client
//
// The consumer has already been stopped by Run.
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

	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
