package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "intelliguard.user.registered", Topic("user", "registered"))
	assert.Equal(t, "intelliguard.dlq.pending-payment-pool", DLQTopic("pending-payment-pool"))
}

func TestNewEvent_RoundTrip(t *testing.T) {
	type payload struct {
		UserID string `json:"user_id"`
	}
	ev, err := NewEvent("user.registered", "u-1", "user", "user-service", payload{UserID: "u-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, 1, ev.Version)
	assert.False(t, ev.Timestamp.IsZero())

	data, err := ev.WithCorrelationID("corr-1").WithMetadata("k", "v").Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, "v", decoded.Metadata["k"])

	var p payload
	require.NoError(t, decoded.UnmarshalData(&p))
	assert.Equal(t, "u-1", p.UserID)
}

func TestNewRawEvent_KeepsPayloadVerbatim(t *testing.T) {
	raw := json.RawMessage(`{"transactionId":"tx-9","amount":12.5}`)
	ev, err := NewRawEvent("payment.pending", "tx-9", "payment", "gateway", raw)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(ev.Data))
}

func TestNewRawEvent_RejectsInvalidJSON(t *testing.T) {
	_, err := NewRawEvent("payment.pending", "", "payment", "gateway", json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte("garbage"))
	assert.Error(t, err)
}
