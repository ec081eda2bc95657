package ports

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
)

// ErrReceiverClosed marks a receiver whose underlying consumer is gone for
// good (connection or channel loss). Receive errors wrapping it stop the pump
// so the worker can surface the failure instead of retrying forever.
var ErrReceiverClosed = errors.New("receiver closed")

// DestinationOptions are applied when a destination is created on first use.
type DestinationOptions struct {
	Retention     time.Duration
	MaxDeliveries int
}

// Transport is the at-least-once broker boundary: administrative
// exists/create for destinations plus send and receive handles. Concrete
// adapters exist for RabbitMQ and Kafka.
type Transport interface {
	// EnsureDestination creates the destination if it does not exist. Losing
	// a creation race to a concurrent caller is success, not an error.
	EnsureDestination(ctx context.Context, name string, opts DestinationOptions) error
	Sender(destination string) (Sender, error)
	Receiver(destination string) (Receiver, error)
	Close() error
}

type Sender interface {
	Send(ctx context.Context, env domain.Envelope) error
	Close() error
}

type Receiver interface {
	// Receive blocks until a message arrives or ctx is done.
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

// Delivery is one received message with its settlement controls. Exactly one
// of Ack, Abandon, or DeadLetter must be called per delivery.
type Delivery interface {
	Envelope() domain.Envelope
	// Attempt is the 1-based delivery attempt count when the transport
	// tracks it, otherwise 1.
	Attempt() int
	Ack(ctx context.Context) error
	Abandon(ctx context.Context) error
	DeadLetter(ctx context.Context, reason string) error
}

// CommandPublisher emits follow-on commands and compensations. It provisions
// destinations on first use and performs no local retry: transport failures
// propagate so the triggering delivery is abandoned and redelivered.
type CommandPublisher interface {
	Publish(ctx context.Context, messageType, correlationID string, payload any, destination string) error
}
