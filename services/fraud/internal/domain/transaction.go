package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
)

// Layouts accepted for Transaction.Timestamp. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a point in time that also decodes local date-times without an
// offset.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts null, RFC 3339 or a zone-less ISO date-time.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON writes RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Transaction is a pending payment as forwarded by the gateway.
type Transaction struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Amount        float64   `json:"amount"`
	Location      string    `json:"location"`
	DeviceID      string    `json:"deviceId"`
	Timestamp     Timestamp `json:"timestamp"`
}

// DecodeTransaction parses a payment payload. Unknown fields are ignored.
func DecodeTransaction(raw []byte) (Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return Transaction{}, fmt.Errorf("%w: decode transaction: %v", apperrors.ErrInvalidInput, err)
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Validate rejects payloads that cannot identify a payment.
func (t Transaction) Validate() error {
	if t.TransactionID == "" {
		return fmt.Errorf("%w: transactionId is required", apperrors.ErrInvalidInput)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount must be a non-negative number", apperrors.ErrInvalidInput)
	}
	return nil
}

// LogValue renders the transaction as a log group.
func (t Transaction) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("transaction_id", t.TransactionID),
		slog.String("user_id", t.UserID),
		slog.Float64("amount", t.Amount),
		slog.String("location", t.Location),
		slog.String("device_id", t.DeviceID),
	}
	if !t.Timestamp.IsZero() {
		attrs = append(attrs, slog.Time("timestamp", t.Timestamp.Time))
	}
	return slog.GroupValue(attrs...)
}
