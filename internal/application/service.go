package application

import (
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

type Config struct {
	PaymentsQueue string
	ShippingQueue string
}

// Service is the saga orchestrator: one transition method per inbound command
// type. Every transition validates the persisted state first, so duplicate
// and out-of-order deliveries degrade to no-ops or retryable signals instead
// of corrupting the record.
type Service struct {
	cfg       Config
	logger    *slog.Logger
	sagas     ports.SagaRepository
	publisher ports.CommandPublisher
	nowFn     func() time.Time
}

type Dependencies struct {
	Config    Config
	Logger    *slog.Logger
	Sagas     ports.SagaRepository
	Publisher ports.CommandPublisher
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.PaymentsQueue == "" {
		cfg.PaymentsQueue = "payments"
	}
	if cfg.ShippingQueue == "" {
		cfg.ShippingQueue = "shipping"
	}
	return &Service{
		cfg:       cfg,
		logger:    deps.Logger,
		sagas:     deps.Sagas,
		publisher: deps.Publisher,
		nowFn:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// RegisterHandlers binds every inbound discriminator to its transition and
// verifies the registry is complete.
func (s *Service) RegisterHandlers(d *Dispatcher) error {
	if err := d.Register(domain.MsgOrderCreated, s.HandleOrderCreated); err != nil {
		return err
	}
	if err := d.Register(domain.MsgOrderCancelled, s.HandleOrderCancelled); err != nil {
		return err
	}
	if err := d.Register(domain.MsgPaymentSucceeded, s.HandlePaymentSucceeded); err != nil {
		return err
	}
	if err := d.Register(domain.MsgPaymentFailed, s.HandlePaymentFailed); err != nil {
		return err
	}
	if err := d.Register(domain.MsgShippingStarted, s.HandleShippingStarted); err != nil {
		return err
	}
	if err := d.Register(domain.MsgShippingCompleted, s.HandleShippingCompleted); err != nil {
		return err
	}
	return d.Registered(domain.InboundMessageTypes())
}

func (s *Service) logTransition(orderID, messageType, outcome string, extra ...any) {
	args := []any{
		"module", "application.service",
		"layer", "application",
		"operation", "transition",
		"outcome", outcome,
		"message_type", messageType,
		"order_id", orderID,
	}
	args = append(args, extra...)
	s.logger.Info("saga transition", args...)
}
