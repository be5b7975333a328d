package database

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/intelliguard/intelliguard/pkg/database"

// QueryTracer opens a client span per repository call and warns about
// queries slower than SlowThreshold. A nil *QueryTracer still traces but
// never logs.
type QueryTracer struct {
	SlowThreshold time.Duration
	Logger        *slog.Logger
}

// NewQueryTracer returns a tracer that logs queries slower than threshold.
// A zero threshold disables slow query logging.
func NewQueryTracer(threshold time.Duration, logger *slog.Logger) *QueryTracer {
	return &QueryTracer{SlowThreshold: threshold, Logger: logger}
}

// Start begins a span for operation. Call the returned func with the
// operation's error when it completes:
//
//	ctx, end := r.tracer.Start(ctx, "GetUserByEmail", query)
//	defer func() { end(err) }()
func (q *QueryTracer) Start(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if q == nil || q.SlowThreshold <= 0 || q.Logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= q.SlowThreshold {
			attrs := []any{
				slog.String("operation", operation),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			q.Logger.WarnContext(ctx, "slow query", attrs...)
		}
	}
}
