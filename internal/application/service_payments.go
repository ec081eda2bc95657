package application

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
)

// HandlePaymentSucceeded marks payment done and requests shipping. The
// payment-done flag is monotonic: a redelivered success lands on the no-op
// path and does not re-emit ShippingRequested.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, env domain.Envelope) error {
	var cmd domain.PaymentSucceeded
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
	if saga.PaymentProcessed || saga.State != domain.StateCreated {
		s.logTransition(cmd.OrderID, domain.MsgPaymentSucceeded, "noop", "state", string(saga.State))
		return nil
	}

	now := s.nowFn()
	_, err = s.sagas.Update(ctx, cmd.OrderID, saga.UpdatedAt, func(rec *domain.OrderSaga) {
		rec.PaymentProcessed = true
		rec.State = domain.StatePaymentCompleted
		rec.UpdatedAt = now
	})
	if err != nil {
		return err
	}
	s.logTransition(cmd.OrderID, domain.MsgPaymentSucceeded, "payment_completed")

	return s.publisher.Publish(ctx, domain.MsgShippingRequested, cmd.OrderID,
		domain.ShippingRequested{OrderID: cmd.OrderID}, s.cfg.ShippingQueue)
}

// HandlePaymentFailed is terminal with no compensation: no downstream step
// was started yet.
func (s *Service) HandlePaymentFailed(ctx context.Context, env domain.Envelope) error {
	var cmd domain.PaymentFailed
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
	if saga.State != domain.StateCreated {
		s.logTransition(cmd.OrderID, domain.MsgPaymentFailed, "noop", "state", string(saga.State))
		return nil
	}

	now := s.nowFn()
	_, err = s.sagas.Update(ctx, cmd.OrderID, saga.UpdatedAt, func(rec *domain.OrderSaga) {
		rec.State = domain.StatePaymentFailed
		rec.ErrorMessage = domain.TruncateReason(cmd.Reason)
		rec.UpdatedAt = now
	})
	if err != nil {
		return fmt.Errorf("mark payment failed for %s: %w", cmd.OrderID, err)
	}
	s.logTransition(cmd.OrderID, domain.MsgPaymentFailed, "payment_failed", "reason", cmd.Reason)
	return nil
}
