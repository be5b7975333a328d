package domain

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
)

func TestDecodeTransaction(t *testing.T) {
	raw := []byte(`{
		"transactionId": "tx-1",
		"userId": "u-1",
		"amount": 129.5,
		"location": "Berlin",
		"deviceId": "dev-9",
		"timestamp": "2026-03-01T12:30:00",
		"currency": "EUR"
	}`)

	tx, err := DecodeTransaction(raw)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.TransactionID)
	assert.Equal(t, "u-1", tx.UserID)
	assert.Equal(t, 129.5, tx.Amount)
	assert.Equal(t, "Berlin", tx.Location)
	assert.Equal(t, "dev-9", tx.DeviceID)
	assert.True(t, tx.Timestamp.Equal(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)))
}

func TestTimestamp_Layouts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339 with offset", `"2026-03-01T14:30:00+02:00"`, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"zulu", `"2026-03-01T12:30:00Z"`, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"local fractional", `"2026-03-01T12:30:00.25"`, time.Date(2026, 3, 1, 12, 30, 0, 250_000_000, time.UTC)},
		{"null", `null`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, ts.UnmarshalJSON([]byte(tt.in)))
			assert.True(t, ts.Equal(tt.want), "got %v", ts.Time)
		})
	}
}

func TestTimestamp_Invalid(t *testing.T) {
	var ts Timestamp
	assert.Error(t, ts.UnmarshalJSON([]byte(`"yesterday"`)))
	assert.Error(t, ts.UnmarshalJSON([]byte(`1700000000`)))
}

func TestTimestamp_MarshalJSON(t *testing.T) {
	b, err := Timestamp{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = Timestamp{time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-01T12:00:00Z"`, string(b))
}

func TestDecodeTransaction_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `payment please`},
		{"array", `[1,2]`},
		{"missing transaction id", `{"userId":"u-1","amount":10}`},
		{"negative amount", `{"transactionId":"tx","amount":-1}`},
		{"amount as string", `{"transactionId":"tx","amount":"ten"}`},
		{"bad timestamp", `{"transactionId":"tx","timestamp":"soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTransaction([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestTransaction_LogValue(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))

	l.Info("tx", slog.Any("transaction", Transaction{TransactionID: "tx-7", Amount: 3}))

	out := buf.String()
	assert.Contains(t, out, "transaction.transaction_id=tx-7")
	assert.Contains(t, out, "transaction.amount=3")
	assert.NotContains(t, out, "transaction.timestamp")
}
