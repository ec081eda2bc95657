package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env, err := NewEnvelope(MsgPaymentRequested, "ORDER-1",
		PaymentRequested{OrderID: "ORDER-1", Amount: decimal.NewFromFloat(100.00)}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, env.MessageID)
	assert.Equal(t, "ORDER-1", env.CorrelationID)
	assert.Equal(t, MsgPaymentRequested, env.Subject)
	assert.Equal(t, EnvelopeContentType, env.ContentType)
	assert.Equal(t, now, env.CreatedAt)
	assert.Equal(t, MsgPaymentRequested, env.Properties[PropertyMessageType])
	assert.Equal(t, now.Format(time.RFC3339Nano), env.Properties[PropertyCreatedAt])

	var decoded PaymentRequested
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, "ORDER-1", decoded.OrderID)
	assert.True(t, decoded.Amount.Equal(decimal.NewFromFloat(100.00)))
}

func TestEnvelopeMessageIDsAreUnique(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	first, err := NewEnvelope(MsgShippingRequested, "ORDER-1", ShippingRequested{OrderID: "ORDER-1"}, now)
	require.NoError(t, err)
	second, err := NewEnvelope(MsgShippingRequested, "ORDER-1", ShippingRequested{OrderID: "ORDER-1"}, now)
	require.NoError(t, err)
	assert.NotEqual(t, first.MessageID, second.MessageID)
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	t.Parallel()

	env := Envelope{Body: []byte("not json")}
	var cmd OrderCreated
	require.ErrorIs(t, env.DecodePayload(&cmd), ErrValidation)

	env = Envelope{Body: []byte(`{"message_type":"OrderCreated"}`)}
	require.ErrorIs(t, env.DecodePayload(&cmd), ErrValidation)
}
