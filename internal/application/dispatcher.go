package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
)

// HandlerFunc is one registered transition handler. It decodes and validates
// its own payload shape before touching state.
type HandlerFunc func(ctx context.Context, env domain.Envelope) error

// Dispatcher maps each message type discriminator to exactly one handler.
// The registry is populated and validated at startup; an unregistered
// discriminator at runtime is a deployment error, never retried.
type Dispatcher struct {
	logger   *slog.Logger
	handlers map[string]HandlerFunc
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

func (d *Dispatcher) Register(messageType string, handler HandlerFunc) error {
	if messageType == "" || handler == nil {
		return fmt.Errorf("dispatcher: message type and handler are required")
	}
	if _, exists := d.handlers[messageType]; exists {
		return fmt.Errorf("dispatcher: duplicate handler for %s", messageType)
	}
	d.handlers[messageType] = handler
	return nil
}

// Registered reports whether every given discriminator has a handler; the
// bootstrap fails fast when wiring left a gap.
func (d *Dispatcher) Registered(messageTypes []string) error {
	for _, mt := range messageTypes {
		if _, ok := d.handlers[mt]; !ok {
			return fmt.Errorf("dispatcher: no handler registered for %s", mt)
		}
	}
	return nil
}

// Dispatch routes the envelope to its handler. Unexpected handler failures
// are wrapped with the discriminator and correlation key and re-raised so the
// pump can apply its retry/dead-letter policy; failures that are already part
// of the closed taxonomy pass through untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, env domain.Envelope) error {
	handler, ok := d.handlers[env.Subject]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownMessageType, env.Subject)
	}

	d.logger.InfoContext(ctx, "dispatching command",
		"module", "application.dispatcher",
		"layer", "application",
		"operation", "dispatch",
		"message_type", env.Subject,
		"order_id", env.CorrelationID,
		"message_id", env.MessageID,
	)

	err := handler(ctx, env)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrSagaNotFound) ||
		errors.Is(err, domain.ErrOutOfOrder) ||
		errors.Is(err, domain.ErrConcurrencyConflict) ||
		errors.Is(err, domain.ErrTransport) {
		return err
	}
	wrapped := &domain.HandlerError{MessageType: env.Subject, OrderID: env.CorrelationID, Err: err}
	d.logger.ErrorContext(ctx, "command handler failed",
		"module", "application.dispatcher",
		"layer", "application",
		"operation", "dispatch",
		"outcome", "failure",
		"message_type", env.Subject,
		"order_id", env.CorrelationID,
		"error", err,
	)
	return wrapped
}
