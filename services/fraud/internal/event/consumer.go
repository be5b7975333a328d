package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pkgkafka "github.com/intelliguard/intelliguard/pkg/kafka"
	"github.com/intelliguard/intelliguard/services/fraud/internal/domain"
)

// EventPaymentPending is the event type the gateway publishes for new payments.
const EventPaymentPending = "payment.pending"

var transactionsReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fraud_transactions_received_total",
		Help: "Pending payments seen by the fraud consumer, by outcome.",
	},
	[]string{"outcome"},
)

// Sink receives every decoded transaction. Scoring plugs in here.
type Sink interface {
	Record(ctx context.Context, tx domain.Transaction) error
}

// LogSink writes each transaction to the log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that only logs.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs tx at info level.
func (s *LogSink) Record(ctx context.Context, tx domain.Transaction) error {
	s.logger.InfoContext(ctx, "pending payment received", slog.Any("transaction", tx))
	return nil
}

// PaymentHandler decodes pending-payment envelopes and hands them to a Sink.
type PaymentHandler struct {
	sink   Sink
	logger *slog.Logger
}

// NewPaymentHandler creates a new payment event handler.
func NewPaymentHandler(sink Sink, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{sink: sink, logger: logger}
}

// Handle processes one envelope. Other event types are skipped; an
// undecodable payload is returned as an error so it ends up dead-lettered.
func (h *PaymentHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != EventPaymentPending {
		transactionsReceived.WithLabelValues("skipped").Inc()
		h.logger.WarnContext(ctx, "unexpected event type on payment topic",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	tx, err := domain.DecodeTransaction(event.Data)
	if err != nil {
		transactionsReceived.WithLabelValues("invalid").Inc()
		return fmt.Errorf("event %s: %w", event.EventID, err)
	}

	if err := h.sink.Record(ctx, tx); err != nil {
		transactionsReceived.WithLabelValues("failed").Inc()
		return fmt.Errorf("record transaction %s: %w", tx.TransactionID, err)
	}
	transactionsReceived.WithLabelValues("recorded").Inc()
	return nil
}

// ConsumerConfig holds the payment consumer settings.
type ConsumerConfig struct {
	Topic        string
	Group        string
	RetryBackoff time.Duration
}

// NewPaymentConsumer wraps h in the idempotency guard and returns a consumer
// that dead-letters messages still failing after retries.
func NewPaymentConsumer(
	r pkgkafka.MessageReader,
	cfg ConsumerConfig,
	h *PaymentHandler,
	store pkgkafka.IdempotencyStore,
	dlq pkgkafka.DeadLetterer,
	logger *slog.Logger,
) *pkgkafka.Consumer {
	guarded := pkgkafka.IdempotentHandler(store, h.Handle, logger)
	c := pkgkafka.NewConsumerWithReader(r, cfg.Topic, cfg.Group, guarded, logger)
	if dlq != nil {
		c.WithDLQ(dlq)
	}
	if cfg.RetryBackoff > 0 {
		c.WithRetryBackoff(cfg.RetryBackoff)
	}
	return c
}
