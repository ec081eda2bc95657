// Package rabbit adapts RabbitMQ to the transport port. Destinations are
// quorum queues with bounded message TTL and a per-queue delivery limit that
// routes exhausted messages to "<queue>.dlq".
package rabbit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

const deadLetterSuffix = ".dlq"

type Transport struct {
	logger *slog.Logger
	conn   *amqp.Connection
}

// Dial connects to the broker, retrying with backoff so the service survives
// a broker that is still starting up.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Transport, error) {
	var conn *amqp.Connection
	err := retry.Do(
		func() error {
			var dialErr error
			conn, dialErr = amqp.Dial(url)
			return dialErr
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return &Transport{logger: logger, conn: conn}, nil
}

// EnsureDestination declares the queue and its dead-letter companion. Declares
// are idempotent for identical arguments, so two concurrent first-time
// publishers both succeed and exactly one logical queue results.
func (t *Transport) EnsureDestination(ctx context.Context, name string, opts ports.DestinationOptions) error {
	ch, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(name+deadLetterSuffix, true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	}); err != nil {
		return fmt.Errorf("declare dead-letter queue for %s: %w", name, err)
	}

	args := amqp.Table{
		"x-queue-type":              "quorum",
		"x-message-ttl":             opts.Retention.Milliseconds(),
		"x-delivery-limit":          int32(opts.MaxDeliveries),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": name + deadLetterSuffix,
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}

	t.logger.InfoContext(ctx, "destination ensured",
		"module", "rabbit.transport",
		"layer", "adapter",
		"operation", "ensure_destination",
		"outcome", "success",
		"destination", name,
	)
	return nil
}

func (t *Transport) Sender(destination string) (ports.Sender, error) {
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open sender channel for %s: %w", destination, err)
	}
	return &sender{ch: ch, queue: destination}, nil
}

func (t *Transport) Receiver(destination string) (ports.Receiver, error) {
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open receiver channel for %s: %w", destination, err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos for %s: %w", destination, err)
	}
	deliveries, err := ch.Consume(destination, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", destination, err)
	}
	return &receiver{ch: ch, queue: destination, deliveries: deliveries}, nil
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

type sender struct {
	ch    *amqp.Channel
	queue string
}

func (s *sender) Send(ctx context.Context, env domain.Envelope) error {
	headers := amqp.Table{}
	for k, v := range env.Properties {
		headers[k] = v
	}
	return s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		Headers:       headers,
		ContentType:   env.ContentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: env.CorrelationID,
		MessageId:     env.MessageID,
		Timestamp:     env.CreatedAt,
		Type:          env.Subject,
		Body:          env.Body,
	})
}

func (s *sender) Close() error { return s.ch.Close() }

type receiver struct {
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

func (r *receiver) Receive(ctx context.Context) (ports.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-r.deliveries:
		if !ok {
			// The broker closed the consumer channel; it never reopens.
			return nil, fmt.Errorf("%w: consumer channel for %s", ports.ErrReceiverClosed, r.queue)
		}
		return &delivery{d: d}, nil
	}
}

func (r *receiver) Close() error { return r.ch.Close() }

type delivery struct {
	d amqp.Delivery
}

func (d *delivery) Envelope() domain.Envelope {
	props := make(map[string]string, len(d.d.Headers))
	for k, v := range d.d.Headers {
		if s, ok := v.(string); ok {
			props[k] = s
		}
	}
	return domain.Envelope{
		MessageID:     d.d.MessageId,
		CorrelationID: d.d.CorrelationId,
		Subject:       d.d.Type,
		ContentType:   d.d.ContentType,
		CreatedAt:     d.d.Timestamp,
		Properties:    props,
		Body:          d.d.Body,
	}
}

// Attempt reads the quorum queue delivery counter; first delivery carries no
// header.
func (d *delivery) Attempt() int {
	if raw, ok := d.d.Headers["x-delivery-count"]; ok {
		switch v := raw.(type) {
		case int32:
			return int(v) + 1
		case int64:
			return int(v) + 1
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n + 1
			}
		}
	}
	return 1
}

func (d *delivery) Ack(context.Context) error { return d.d.Ack(false) }

func (d *delivery) Abandon(context.Context) error { return d.d.Nack(false, true) }

// DeadLetter rejects without requeue; the queue's dead-letter routing moves
// the message to the companion queue.
func (d *delivery) DeadLetter(context.Context, string) error { return d.d.Nack(false, false) }

var _ ports.Transport = (*Transport)(nil)
