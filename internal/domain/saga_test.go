package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaStateTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StateCreated.Terminal())
	assert.False(t, StatePaymentCompleted.Terminal())
	assert.False(t, StateShippingInProgress.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StatePaymentFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
}

func TestParseSagaState(t *testing.T) {
	t.Parallel()

	state, ok := ParseSagaState("PaymentCompleted")
	require.True(t, ok)
	assert.Equal(t, StatePaymentCompleted, state)

	_, ok = ParseSagaState("Shipped")
	assert.False(t, ok)
}

func TestNewOrderSaga(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	saga := NewOrderSaga("ORDER-1", decimal.NewFromFloat(100.00), now)

	assert.Equal(t, "ORDER-1", saga.OrderID)
	assert.Equal(t, StateCreated, saga.State)
	assert.False(t, saga.PaymentProcessed)
	assert.False(t, saga.ShippingProcessed)
	assert.Equal(t, now, saga.CreatedAt)
	assert.Equal(t, now, saga.UpdatedAt)
	assert.Empty(t, saga.ErrorMessage)
}

func TestTruncateReason(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", TruncateReason("short"))
	long := strings.Repeat("x", MaxErrorMessageLength+50)
	assert.Len(t, TruncateReason(long), MaxErrorMessageLength)
}

func TestCommandValidation(t *testing.T) {
	t.Parallel()

	require.NoError(t, OrderCreated{OrderID: "ORDER-1", Amount: decimal.NewFromInt(50)}.Validate())

	err := OrderCreated{OrderID: "", Amount: decimal.NewFromInt(50)}.Validate()
	require.ErrorIs(t, err, ErrValidation)

	err = OrderCreated{OrderID: "ORDER-1", Amount: decimal.Zero}.Validate()
	require.ErrorIs(t, err, ErrValidation)

	err = OrderCreated{OrderID: "ORDER-1", Amount: decimal.NewFromInt(-1)}.Validate()
	require.ErrorIs(t, err, ErrValidation)

	err = PaymentSucceeded{OrderID: strings.Repeat("a", MaxOrderIDLength+1)}.Validate()
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, OrderCancelled{OrderID: "ORDER-1"}.Validate())
	require.NoError(t, PaymentFailed{OrderID: "ORDER-1", Reason: "insufficient funds"}.Validate())
}
