package application

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
)

// HandleShippingStarted is informational: it narrows PaymentCompleted to
// ShippingInProgress and emits nothing. Arriving before payment completed is
// an ordering race, reported as retryable so redelivery can land it once the
// prerequisite state exists.
func (s *Service) HandleShippingStarted(ctx context.Context, env domain.Envelope) error {
	var cmd domain.ShippingStarted
	if err := env.DecodePayload(&cmd); err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	saga, err := s.sagas.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	switch saga.State {
	case domain.StatePaymentCompleted:
		// expected transition, fall through
	case domain.StateShippingInProgress, domain.StateCompleted:
		s.logTransition(cmd.OrderID, domain.MsgShippingStarted, "noop", "state", string(saga.State))
		return nil
	case domain.StateCreated:
		return fmt.Errorf("%w: shipping started before payment completed for %s", domain.ErrOutOfOrder, cmd.OrderID)
	default:
		// terminal failure/cancellation; shipping signal can never apply
		s.logTransition(cmd.OrderID, domain.MsgShippingStarted, "noop", "state", string(saga.State))
		return nil
	}

	now := s.nowFn()
	_, err = s.sagas.Update(ctx, cmd.OrderID, saga.UpdatedAt, func(rec *domain.OrderSaga) {
		rec.State = domain.StateShippingInProgress
		rec.UpdatedAt = now
	})
	if err != nil {
		return err
	}
	s.logTransition(cmd.OrderID, domain.MsgShippingStarted, "shipping_in_progress")
	return nil
}

// HandleShippingCompleted finishes the saga. The shipping-done flag is
// monotonic, so duplicates are no-ops.
func (s *Service) HandleShippingCompleted(ctx context.Context, env domain.Envelope) error {
	var cmd domain.ShippingCompleted
	if err := env.DecodePayload(&cmd); err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	saga, err := s.sagas.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	switch saga.State {
	case domain.StatePaymentCompleted, domain.StateShippingInProgress:
		// expected transition, fall through
	case domain.StateCompleted:
		s.logTransition(cmd.OrderID, domain.MsgShippingCompleted, "noop", "state", string(saga.State))
		return nil
	case domain.StateCreated:
		return fmt.Errorf("%w: shipping completed before payment completed for %s", domain.ErrOutOfOrder, cmd.OrderID)
	default:
		s.logTransition(cmd.OrderID, domain.MsgShippingCompleted, "noop", "state", string(saga.State))
		return nil
	}

	now := s.nowFn()
	_, err = s.sagas.Update(ctx, cmd.OrderID, saga.UpdatedAt, func(rec *domain.OrderSaga) {
		rec.ShippingProcessed = true
		rec.State = domain.StateCompleted
		rec.UpdatedAt = now
	})
	if err != nil {
		return err
	}
	s.logTransition(cmd.OrderID, domain.MsgShippingCompleted, "completed")
	return nil
}
