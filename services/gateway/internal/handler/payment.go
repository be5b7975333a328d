package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	"github.com/intelliguard/intelliguard/pkg/httputil"
	pkgkafka "github.com/intelliguard/intelliguard/pkg/kafka"
	"github.com/intelliguard/intelliguard/pkg/logger"
	"github.com/intelliguard/intelliguard/pkg/middleware"
)

// EventPaymentPending is the event type of forwarded payment payloads.
const EventPaymentPending = "payment.pending"

const maxPaymentBody = 1 << 20

var paymentsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_payments_initiated_total",
	Help: "Payment initiation requests by outcome.",
}, []string{"outcome"})

// PaymentHandler forwards payment payloads onto the pending payment topic.
type PaymentHandler struct {
	publisher pkgkafka.Publisher
	topic     string
	logger    *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler publishing to topic.
func NewPaymentHandler(publisher pkgkafka.Publisher, topic string, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{publisher: publisher, topic: topic, logger: logger}
}

// Initiate handles POST /api/v1/initiate-payment. The JSON body is published
// unchanged as the event data.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPaymentBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, r, "payment payload too large")
			return
		}
		h.reject(w, r, "unreadable request body")
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.reject(w, r, "payment payload must be a JSON object")
		return
	}

	var transactionID string
	if v, ok := payload["transactionId"]; ok {
		_ = json.Unmarshal(v, &transactionID)
	}

	evt, err := pkgkafka.NewRawEvent(EventPaymentPending, transactionID, "payment", "gateway", raw)
	if err != nil {
		h.reject(w, r, "payment payload must be valid JSON")
		return
	}
	if id := logger.CorrelationIDFromContext(r.Context()); id != "" {
		evt.WithCorrelationID(id)
	}
	if userID := middleware.UserIDFromContext(r.Context()); userID != "" {
		evt.WithMetadata("user_id", userID)
	}

	if err := h.publisher.Publish(r.Context(), h.topic, evt); err != nil {
		paymentsInitiated.WithLabelValues("failed").Inc()
		httputil.WriteError(w, r, apperrors.ServiceUnavailable("payment queue unavailable"), h.logger)
		h.logger.ErrorContext(r.Context(), "publish payment event failed",
			slog.String("topic", h.topic),
			slog.String("transaction_id", transactionID),
			slog.String("error", err.Error()),
		)
		return
	}

	paymentsInitiated.WithLabelValues("accepted").Inc()
	h.logger.InfoContext(r.Context(), "payment initiated",
		slog.String("event_id", evt.EventID),
		slog.String("transaction_id", transactionID),
	)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"message": "Payment initiated"})
}

func (h *PaymentHandler) reject(w http.ResponseWriter, r *http.Request, message string) {
	paymentsInitiated.WithLabelValues("rejected").Inc()
	httputil.WriteError(w, r, apperrors.InvalidInput(message), h.logger)
}
