package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Message type discriminators. Inbound types drive saga transitions; outbound
// types are the follow-on commands the orchestrator emits.
const (
	MsgOrderCreated      = "OrderCreated"
	MsgOrderCancelled    = "OrderCancelled"
	MsgPaymentSucceeded  = "PaymentSucceeded"
	MsgPaymentFailed     = "PaymentFailed"
	MsgShippingStarted   = "ShippingStarted"
	MsgShippingCompleted = "ShippingCompleted"

	MsgPaymentRequested             = "PaymentRequested"
	MsgShippingRequested            = "ShippingRequested"
	MsgPaymentCompensationRequested = "PaymentCompensationRequested"
)

// InboundMessageTypes lists every discriminator the dispatcher must have a
// handler for; registration is validated against it at startup.
func InboundMessageTypes() []string {
	return []string{
		MsgOrderCreated,
		MsgOrderCancelled,
		MsgPaymentSucceeded,
		MsgPaymentFailed,
		MsgShippingStarted,
		MsgShippingCompleted,
	}
}

type OrderCreated struct {
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func (c OrderCreated) Validate() error {
	if err := validateOrderID(c.OrderID); err != nil {
		return err
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return nil
}

type OrderCancelled struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

func (c OrderCancelled) Validate() error { return validateOrderID(c.OrderID) }

type PaymentSucceeded struct {
	OrderID string `json:"order_id"`
}

func (c PaymentSucceeded) Validate() error { return validateOrderID(c.OrderID) }

type PaymentFailed struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func (c PaymentFailed) Validate() error { return validateOrderID(c.OrderID) }

type ShippingStarted struct {
	OrderID string `json:"order_id"`
}

func (c ShippingStarted) Validate() error { return validateOrderID(c.OrderID) }

type ShippingCompleted struct {
	OrderID string `json:"order_id"`
}

func (c ShippingCompleted) Validate() error { return validateOrderID(c.OrderID) }

type PaymentRequested struct {
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type ShippingRequested struct {
	OrderID string `json:"order_id"`
}

type PaymentCompensationRequested struct {
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func validateOrderID(orderID string) error {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return fmt.Errorf("%w: order_id is required", ErrValidation)
	}
	if len(trimmed) > MaxOrderIDLength {
		return fmt.Errorf("%w: order_id exceeds %d characters", ErrValidation, MaxOrderIDLength)
	}
	return nil
}
