package eventbus

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickPayload struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func TestNewEnvelopeFillsIdentity(t *testing.T) {
	env, err := NewEnvelope("orders.updated", 3, "order-service", "corr-1", "ord-1", tickPayload{Symbol: "BTC-USDT"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, env.EventID)
	assert.Equal(t, "orders.updated", env.EventType)
	assert.Equal(t, 3, env.EventVersion)
	assert.False(t, env.OccurredAt.IsZero())
	assert.Empty(t, env.CausationID)
	assert.Empty(t, env.TenantID)
}

func TestNewEnvelopeValidation(t *testing.T) {
	cases := []struct {
		name                  string
		eventType             string
		version               int
		producer, corrID, key string
	}{
		{"blank type", "", 1, "p", "c", "k"},
		{"zero version", "t.x", 0, "p", "c", "k"},
		{"blank producer", "t.x", 1, "", "c", "k"},
		{"blank correlation", "t.x", 1, "p", "", "k"},
		{"blank key", "t.x", 1, "p", "c", ""},
		{"whitespace type", "   ", 1, "p", "c", "k"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEnvelope(tc.eventType, tc.version, tc.producer, tc.corrID, tc.key, tickPayload{})
			assert.Error(t, err)
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope("executions.recorded", 1, "matching-engine", "corr-9", "BTC-USDT", tickPayload{
		Symbol: "BTC-USDT",
		Price:  "65000.5",
	})
	require.NoError(t, err)
	env.CausationID = "evt-parent"

	data, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode[tickPayload](data)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.Equal(t, env.EventVersion, decoded.EventVersion)
	assert.Equal(t, env.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, env.CausationID, decoded.CausationID)
	assert.Equal(t, env.Payload, decoded.Payload)
	assert.True(t, env.OccurredAt.Equal(decoded.OccurredAt))
}

func TestEnvelopeOmitsEmptyOptionals(t *testing.T) {
	env, err := NewEnvelope("orders.updated", 3, "order-service", "corr-1", "ord-1", tickPayload{})
	require.NoError(t, err)

	data, err := Encode(env)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "causation_id")
	assert.NotContains(t, raw, "tenant_id")
	assert.Contains(t, raw, "event_id")
	assert.Contains(t, raw, "payload")
}

func TestDecodeRejectsInvalidEnvelopes(t *testing.T) {
	_, err := Decode[tickPayload]([]byte("{broken"))
	assert.Error(t, err)

	// 缺少必填字段的结构合法 JSON 也要拒绝
	_, err = Decode[tickPayload]([]byte(`{"event_type":"orders.updated"}`))
	assert.Error(t, err)
}

func TestEncodeRejectsMutatedInvalidEnvelope(t *testing.T) {
	env, err := NewEnvelope("orders.updated", 3, "order-service", "corr-1", "ord-1", tickPayload{})
	require.NoError(t, err)

	env.EventVersion = 0
	_, err = Encode(env)
	assert.Error(t, err)

	_, err = Encode[tickPayload](nil)
	assert.Error(t, err)
}
