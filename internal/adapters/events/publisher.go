package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

// Publisher emits follow-on commands. It owns two concurrency-safe caches:
// the set of destinations already confirmed to exist and one reusable send
// handle per destination. Both are pure optimizations, safe to lose and
// rebuild after a restart.
type Publisher struct {
	logger      *slog.Logger
	transport   ports.Transport
	opts        ports.DestinationOptions
	provisioned *xsync.MapOf[string, struct{}]
	senders     *xsync.MapOf[string, ports.Sender]
	nowFn       func() time.Time
}

func NewPublisher(logger *slog.Logger, transport ports.Transport, opts ports.DestinationOptions) *Publisher {
	if opts.Retention <= 0 {
		opts.Retention = 14 * 24 * time.Hour
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 10
	}
	return &Publisher{
		logger:      logger,
		transport:   transport,
		opts:        opts,
		provisioned: xsync.NewMapOf[string, struct{}](),
		senders:     xsync.NewMapOf[string, ports.Sender](),
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// Publish provisions the destination on first use, obtains a cached send
// handle, wraps the payload in an envelope, and sends. There is no local
// retry: a transport failure propagates so the caller's delivery is abandoned
// and redelivered.
func (p *Publisher) Publish(ctx context.Context, messageType, correlationID string, payload any, destination string) error {
	if err := p.ensureDestination(ctx, destination); err != nil {
		return err
	}
	sender, err := p.sender(destination)
	if err != nil {
		return err
	}
	env, err := domain.NewEnvelope(messageType, correlationID, payload, p.nowFn())
	if err != nil {
		return err
	}
	if err := sender.Send(ctx, env); err != nil {
		p.logger.ErrorContext(ctx, "publish failed",
			"module", "events.publisher",
			"layer", "adapter",
			"operation", "publish",
			"outcome", "failure",
			"message_type", messageType,
			"order_id", correlationID,
			"destination", destination,
			"error", err,
		)
		return fmt.Errorf("%w: send %s to %s: %v", domain.ErrTransport, messageType, destination, err)
	}
	p.logger.InfoContext(ctx, "command published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "success",
		"message_type", messageType,
		"order_id", correlationID,
		"destination", destination,
		"message_id", env.MessageID,
	)
	return nil
}

func (p *Publisher) ensureDestination(ctx context.Context, destination string) error {
	if _, ok := p.provisioned.Load(destination); ok {
		return nil
	}
	// Concurrent first-time publishes may both reach the transport; the
	// adapter treats "already exists" as success, so losing the race only
	// costs a redundant round trip.
	if err := p.transport.EnsureDestination(ctx, destination, p.opts); err != nil {
		return fmt.Errorf("%w: ensure destination %s: %v", domain.ErrTransport, destination, err)
	}
	p.provisioned.Store(destination, struct{}{})
	return nil
}

func (p *Publisher) sender(destination string) (ports.Sender, error) {
	if sender, ok := p.senders.Load(destination); ok {
		return sender, nil
	}
	created, err := p.transport.Sender(destination)
	if err != nil {
		return nil, fmt.Errorf("%w: open sender for %s: %v", domain.ErrTransport, destination, err)
	}
	if existing, loaded := p.senders.LoadOrStore(destination, created); loaded {
		_ = created.Close()
		return existing, nil
	}
	return created, nil
}

// Close releases all cached send handles.
func (p *Publisher) Close() error {
	p.senders.Range(func(key string, sender ports.Sender) bool {
		_ = sender.Close()
		p.senders.Delete(key)
		return true
	})
	return nil
}

var _ ports.CommandPublisher = (*Publisher)(nil)
