package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

// Pump is the inbound loop for one subscribed destination: receive, decode,
// dispatch, then settle the delivery according to the failure taxonomy. At
// most maxInFlight messages are processed concurrently.
type Pump struct {
	logger        *slog.Logger
	destination   string
	receiver      ports.Receiver
	dispatcher    *application.Dispatcher
	dedup         ports.MessageDedup
	maxInFlight   int
	maxDeliveries int
}

func NewPump(logger *slog.Logger, destination string, receiver ports.Receiver, dispatcher *application.Dispatcher, dedup ports.MessageDedup, maxInFlight, maxDeliveries int) *Pump {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 10
	}
	return &Pump{
		logger:        logger,
		destination:   destination,
		receiver:      receiver,
		dispatcher:    dispatcher,
		dedup:         dedup,
		maxInFlight:   maxInFlight,
		maxDeliveries: maxDeliveries,
	}
}

func (p *Pump) Run(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxInFlight)

	for {
		delivery, err := p.receiver.Receive(groupCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) || groupCtx.Err() != nil {
				_ = g.Wait()
				return ctx.Err()
			}
			if errors.Is(err, ports.ErrReceiverClosed) {
				p.logger.ErrorContext(groupCtx, "receiver closed, stopping pump",
					"module", "events.pump",
					"layer", "adapter",
					"operation", "receive",
					"outcome", "failure",
					"destination", p.destination,
					"error", err,
				)
				_ = g.Wait()
				return err
			}
			p.logger.ErrorContext(groupCtx, "receive failed",
				"module", "events.pump",
				"layer", "adapter",
				"operation", "receive",
				"outcome", "failure",
				"destination", p.destination,
				"error", err,
			)
			select {
			case <-groupCtx.Done():
				_ = g.Wait()
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		g.Go(func() error {
			p.process(groupCtx, delivery)
			return nil
		})
	}
}

func (p *Pump) process(ctx context.Context, delivery ports.Delivery) {
	env := delivery.Envelope()

	if p.dedup != nil {
		seen, err := p.dedup.IsDuplicate(ctx, env.MessageID)
		if err != nil {
			p.logger.WarnContext(ctx, "dedup check failed, continuing",
				"module", "events.pump", "layer", "adapter", "operation", "dedup",
				"message_id", env.MessageID, "error", err)
		} else if seen {
			p.logger.InfoContext(ctx, "duplicate message acked",
				"module", "events.pump", "layer", "adapter", "operation", "dedup",
				"outcome", "duplicate", "message_id", env.MessageID,
				"message_type", env.Subject, "order_id", env.CorrelationID)
			p.settle(ctx, delivery, env, nil)
			return
		}
	}

	err := p.dispatcher.Dispatch(ctx, env)
	p.settle(ctx, delivery, env, err)
}

// settle applies the failure taxonomy deterministically: success acks, permanent
// failures dead-letter immediately, everything retryable abandons until the
// delivery-attempt ceiling routes it to the dead-letter path.
func (p *Pump) settle(ctx context.Context, delivery ports.Delivery, env domain.Envelope, dispatchErr error) {
	logArgs := []any{
		"module", "events.pump",
		"layer", "adapter",
		"operation", "settle",
		"destination", p.destination,
		"message_type", env.Subject,
		"order_id", env.CorrelationID,
		"message_id", env.MessageID,
		"attempt", delivery.Attempt(),
	}

	switch {
	case dispatchErr == nil:
		if err := delivery.Ack(ctx); err != nil {
			p.logger.ErrorContext(ctx, "ack failed", append(logArgs, "error", err)...)
			return
		}
		if p.dedup != nil {
			if err := p.dedup.MarkProcessed(ctx, env.MessageID); err != nil {
				p.logger.WarnContext(ctx, "dedup mark failed", append(logArgs, "error", err)...)
			}
		}

	case errors.Is(dispatchErr, domain.ErrUnknownMessageType),
		errors.Is(dispatchErr, domain.ErrValidation):
		// Configuration or producer defect: redelivery cannot fix it.
		p.logger.ErrorContext(ctx, "dead-lettering permanent failure",
			append(logArgs, "outcome", "dead_letter", "error", dispatchErr)...)
		if err := delivery.DeadLetter(ctx, dispatchErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "dead-letter failed", append(logArgs, "error", err)...)
		}

	default:
		// SagaNotFound and OutOfOrder absorb genuine ordering races;
		// ConcurrencyConflict, HandlerError, and transport failures are
		// transient. All ride transport redelivery up to the ceiling.
		if delivery.Attempt() >= p.maxDeliveries {
			p.logger.ErrorContext(ctx, "delivery ceiling exhausted, dead-lettering",
				append(logArgs, "outcome", "dead_letter", "error", dispatchErr)...)
			if err := delivery.DeadLetter(ctx, dispatchErr.Error()); err != nil {
				p.logger.ErrorContext(ctx, "dead-letter failed", append(logArgs, "error", err)...)
			}
			return
		}
		p.logger.WarnContext(ctx, "abandoning for redelivery",
			append(logArgs, "outcome", "abandon", "error", dispatchErr)...)
		if err := delivery.Abandon(ctx); err != nil {
			p.logger.ErrorContext(ctx, "abandon failed", append(logArgs, "error", err)...)
		}
	}
}
