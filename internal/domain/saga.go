package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SagaState string

const (
	StateCreated            SagaState = "Created"
	StatePaymentCompleted   SagaState = "PaymentCompleted"
	StateShippingInProgress SagaState = "ShippingInProgress"
	StateCompleted          SagaState = "Completed"
	StatePaymentFailed      SagaState = "PaymentFailed"
	StateCancelled          SagaState = "Cancelled"
)

const (
	MaxOrderIDLength      = 100
	MaxErrorMessageLength = 1000
)

// Terminal reports whether a saga in this state accepts no further commands.
func (s SagaState) Terminal() bool {
	switch s {
	case StateCompleted, StatePaymentFailed, StateCancelled:
		return true
	default:
		return false
	}
}

func ParseSagaState(raw string) (SagaState, bool) {
	switch SagaState(raw) {
	case StateCreated, StatePaymentCompleted, StateShippingInProgress,
		StateCompleted, StatePaymentFailed, StateCancelled:
		return SagaState(raw), true
	default:
		return "", false
	}
}

// OrderSaga is the durable per-order record driving the fulfillment saga.
// PaymentProcessed and ShippingProcessed are monotonic: once true they never
// reset, which is what makes redelivered commands safe to re-apply.
type OrderSaga struct {
	OrderID           string
	Amount            decimal.Decimal
	State             SagaState
	PaymentProcessed  bool
	ShippingProcessed bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ErrorMessage      string
}

func NewOrderSaga(orderID string, amount decimal.Decimal, now time.Time) OrderSaga {
	return OrderSaga{
		OrderID:   orderID,
		Amount:    amount,
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TruncateReason bounds failure/cancellation text to the persisted column size.
func TruncateReason(reason string) string {
	if len(reason) > MaxErrorMessageLength {
		return reason[:MaxErrorMessageLength]
	}
	return reason
}
