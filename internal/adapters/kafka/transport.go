// Package kafka adapts Kafka to the transport port. Kafka has no native
// per-message abandon or delivery ceiling, so abandon republishes the message
// to its own topic with an incremented delivery-count header before
// committing, and exhausted or poisoned messages go to "<topic>.dlq".
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

const (
	deadLetterSuffix    = ".dlq"
	headerMessageID     = "message-id"
	headerCorrelationID = "correlation-id"
	headerSubject       = "subject"
	headerContentType   = "content-type"
	headerCreatedAt     = "created-at"
	headerDeliveryCount = "x-delivery-count"
	headerDLQReason     = "dead-letter-reason"
)

type Transport struct {
	logger  *slog.Logger
	brokers []string
	groupID string
	client  *kafka.Client
	writer  *kafka.Writer
}

func New(brokers []string, groupID string, logger *slog.Logger) (*Transport, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka transport requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka transport requires group id")
	}
	return &Transport{
		logger:  logger,
		brokers: brokers,
		groupID: groupID,
		client:  &kafka.Client{Addr: kafka.TCP(brokers...)},
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (t *Transport) EnsureDestination(ctx context.Context, name string, opts ports.DestinationOptions) error {
	retentionMs := strconv.FormatInt(opts.Retention.Milliseconds(), 10)
	topics := []kafka.TopicConfig{
		topicConfig(name, retentionMs),
		topicConfig(name+deadLetterSuffix, retentionMs),
	}
	resp, err := t.client.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: topics})
	if err != nil {
		return fmt.Errorf("create topics for %s: %w", name, err)
	}
	for topic, topicErr := range resp.Errors {
		if topicErr != nil && !errors.Is(topicErr, kafka.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, topicErr)
		}
	}
	t.logger.InfoContext(ctx, "destination ensured",
		"module", "kafka.transport",
		"layer", "adapter",
		"operation", "ensure_destination",
		"outcome", "success",
		"destination", name,
	)
	return nil
}

func topicConfig(name, retentionMs string) kafka.TopicConfig {
	return kafka.TopicConfig{
		Topic:             name,
		NumPartitions:     -1,
		ReplicationFactor: -1,
		ConfigEntries: []kafka.ConfigEntry{
			{ConfigName: "retention.ms", ConfigValue: retentionMs},
		},
	}
}

func (t *Transport) Sender(destination string) (ports.Sender, error) {
	return &sender{writer: t.writer, topic: destination}, nil
}

func (t *Transport) Receiver(destination string) (ports.Receiver, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  t.brokers,
		GroupID:  t.groupID,
		Topic:    destination,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &receiver{reader: reader, writer: t.writer, topic: destination}, nil
}

func (t *Transport) Close() error {
	return t.writer.Close()
}

type sender struct {
	writer *kafka.Writer
	topic  string
}

func (s *sender) Send(ctx context.Context, env domain.Envelope) error {
	return s.writer.WriteMessages(ctx, toMessage(env, s.topic, 1))
}

// Close is a no-op: the writer is shared transport-wide.
func (s *sender) Close() error { return nil }

type receiver struct {
	reader *kafka.Reader
	writer *kafka.Writer
	topic  string
}

func (r *receiver) Receive(ctx context.Context) (ports.Delivery, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return &delivery{reader: r.reader, writer: r.writer, topic: r.topic, msg: msg}, nil
}

func (r *receiver) Close() error { return r.reader.Close() }

type delivery struct {
	reader *kafka.Reader
	writer *kafka.Writer
	topic  string
	msg    kafka.Message
}

func (d *delivery) Envelope() domain.Envelope {
	env := domain.Envelope{
		CreatedAt:  d.msg.Time,
		Properties: make(map[string]string),
		Body:       d.msg.Value,
	}
	for _, h := range d.msg.Headers {
		value := string(h.Value)
		switch h.Key {
		case headerMessageID:
			env.MessageID = value
		case headerCorrelationID:
			env.CorrelationID = value
		case headerSubject:
			env.Subject = value
		case headerContentType:
			env.ContentType = value
		case headerCreatedAt:
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				env.CreatedAt = ts
			}
		case headerDeliveryCount:
			// consumed by Attempt
		default:
			env.Properties[h.Key] = value
		}
	}
	if env.CorrelationID == "" {
		env.CorrelationID = string(d.msg.Key)
	}
	return env
}

func (d *delivery) Attempt() int {
	for _, h := range d.msg.Headers {
		if h.Key == headerDeliveryCount {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

func (d *delivery) Ack(ctx context.Context) error {
	return d.reader.CommitMessages(ctx, d.msg)
}

// Abandon re-enqueues the message on its own topic with the delivery counter
// bumped, then commits the original offset. Redelivery is therefore immediate
// rather than rebalance-driven, and the counter keeps the ceiling honest.
func (d *delivery) Abandon(ctx context.Context) error {
	next := toMessage(d.Envelope(), d.topic, d.Attempt()+1)
	next.Key = d.msg.Key
	if err := d.writer.WriteMessages(ctx, next); err != nil {
		return fmt.Errorf("requeue message: %w", err)
	}
	return d.reader.CommitMessages(ctx, d.msg)
}

func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	dead := toMessage(d.Envelope(), d.topic+deadLetterSuffix, d.Attempt())
	dead.Key = d.msg.Key
	dead.Headers = append(dead.Headers, kafka.Header{Key: headerDLQReason, Value: []byte(reason)})
	if err := d.writer.WriteMessages(ctx, dead); err != nil {
		return fmt.Errorf("write dead letter: %w", err)
	}
	return d.reader.CommitMessages(ctx, d.msg)
}

func toMessage(env domain.Envelope, topic string, attempt int) kafka.Message {
	headers := []kafka.Header{
		{Key: headerMessageID, Value: []byte(env.MessageID)},
		{Key: headerCorrelationID, Value: []byte(env.CorrelationID)},
		{Key: headerSubject, Value: []byte(env.Subject)},
		{Key: headerContentType, Value: []byte(env.ContentType)},
		{Key: headerCreatedAt, Value: []byte(env.CreatedAt.Format(time.RFC3339Nano))},
		{Key: headerDeliveryCount, Value: []byte(strconv.Itoa(attempt))},
	}
	for k, v := range env.Properties {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(env.CorrelationID),
		Value:   env.Body,
		Time:    env.CreatedAt,
		Headers: headers,
	}
}

var _ ports.Transport = (*Transport)(nil)
