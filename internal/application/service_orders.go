package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
)

// HandleOrderCreated starts the saga. Re-creation of an existing order is a
// duplicate delivery: no state change and, critically, no re-emission of
// PaymentRequested.
func (s *Service) HandleOrderCreated(ctx context.Context, env domain.Envelope) error {
	var cmd domain.OrderCreated
	if err := env.DecodePayload(&cmd); err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return err
	}
	amount := cmd.Amount.Round(2)

	now := s.nowFn()
	saga := domain.NewOrderSaga(cmd.OrderID, amount, now)
	if err := s.sagas.Create(ctx, saga); err != nil {
		if errors.Is(err, domain.ErrDuplicateSaga) {
			s.logTransition(cmd.OrderID, domain.MsgOrderCreated, "duplicate")
			return nil
		}
		return fmt.Errorf("create saga %s: %w", cmd.OrderID, err)
	}
	s.logTransition(cmd.OrderID, domain.MsgOrderCreated, "created", "amount", amount.String())

	return s.publisher.Publish(ctx, domain.MsgPaymentRequested, cmd.OrderID,
		domain.PaymentRequested{OrderID: cmd.OrderID, Amount: amount}, s.cfg.PaymentsQueue)
}

// HandleOrderCancelled moves any non-terminal saga to Cancelled. When payment
// already completed the compensating refund command is emitted before the
// record turns terminal, so a crash in between is resolved by redelivery
// rather than by losing the refund.
func (s *Service) HandleOrderCancelled(ctx context.Context, env domain.Envelope) error {
	var cmd domain.OrderCancelled
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
	if saga.State.Terminal() {
		s.logTransition(cmd.OrderID, domain.MsgOrderCancelled, "noop", "state", string(saga.State))
		return nil
	}

	if saga.PaymentProcessed {
		err = s.publisher.Publish(ctx, domain.MsgPaymentCompensationRequested, cmd.OrderID,
			domain.PaymentCompensationRequested{OrderID: cmd.OrderID, Amount: saga.Amount}, s.cfg.PaymentsQueue)
		if err != nil {
			return err
		}
	}

	now := s.nowFn()
	_, err = s.sagas.Update(ctx, cmd.OrderID, saga.UpdatedAt, func(rec *domain.OrderSaga) {
		rec.State = domain.StateCancelled
		rec.ErrorMessage = domain.TruncateReason(cmd.Reason)
		rec.UpdatedAt = now
	})
	if err != nil {
		return err
	}
	s.logTransition(cmd.OrderID, domain.MsgOrderCancelled, "cancelled",
		"compensated", saga.PaymentProcessed, "reason", cmd.Reason)
	return nil
}
