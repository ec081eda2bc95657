package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

type fakeDelivery struct {
	env     domain.Envelope
	attempt int

	mu      sync.Mutex
	outcome string
	reason  string
	settled chan struct{}
}

func newFakeDelivery(env domain.Envelope, attempt int) *fakeDelivery {
	return &fakeDelivery{env: env, attempt: attempt, settled: make(chan struct{})}
}

func (d *fakeDelivery) Envelope() domain.Envelope { return d.env }
func (d *fakeDelivery) Attempt() int              { return d.attempt }

func (d *fakeDelivery) record(outcome, reason string) error {
	d.mu.Lock()
	d.outcome = outcome
	d.reason = reason
	d.mu.Unlock()
	close(d.settled)
	return nil
}

func (d *fakeDelivery) Ack(context.Context) error     { return d.record("ack", "") }
func (d *fakeDelivery) Abandon(context.Context) error { return d.record("abandon", "") }
func (d *fakeDelivery) DeadLetter(_ context.Context, reason string) error {
	return d.record("dead_letter", reason)
}

func (d *fakeDelivery) result(t *testing.T) (string, string) {
	t.Helper()
	select {
	case <-d.settled:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was never settled")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome, d.reason
}

type fakeReceiver struct {
	deliveries chan ports.Delivery
}

func newFakeReceiver(deliveries ...ports.Delivery) *fakeReceiver {
	ch := make(chan ports.Delivery, len(deliveries))
	for _, d := range deliveries {
		ch <- d
	}
	return &fakeReceiver{deliveries: ch}
}

func (r *fakeReceiver) Receive(ctx context.Context) (ports.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-r.deliveries:
		return d, nil
	}
}

func (r *fakeReceiver) Close() error { return nil }

// dyingReceiver hands over its queued deliveries, then reports that the
// underlying consumer is gone.
type dyingReceiver struct {
	deliveries chan ports.Delivery
}

func (r *dyingReceiver) Receive(ctx context.Context) (ports.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-r.deliveries:
		return d, nil
	default:
		return nil, fmt.Errorf("%w: consumer channel for orders", ports.ErrReceiverClosed)
	}
}

func (r *dyingReceiver) Close() error { return nil }

type fakeDedup struct {
	mu        sync.Mutex
	seen      map[string]bool
	checkErr  error
	processed []string
}

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: make(map[string]bool)} }

func (d *fakeDedup) IsDuplicate(_ context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.checkErr != nil {
		return false, d.checkErr
	}
	return d.seen[messageID], nil
}

func (d *fakeDedup) MarkProcessed(_ context.Context, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[messageID] = true
	d.processed = append(d.processed, messageID)
	return nil
}

func runPump(t *testing.T, dispatcher *application.Dispatcher, dedup ports.MessageDedup, deliveries ...*fakeDelivery) {
	t.Helper()
	asPort := make([]ports.Delivery, len(deliveries))
	for i, d := range deliveries {
		asPort[i] = d
	}
	pump := NewPump(slog.New(slog.NewTextHandler(io.Discard, nil)),
		"orders", newFakeReceiver(asPort...), dispatcher, dedup, 4, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = pump.Run(ctx)
		close(done)
	}()

	for _, d := range deliveries {
		d.result(t)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func pumpDispatcher(t *testing.T, messageType string, handlerErr error) *application.Dispatcher {
	t.Helper()
	d := application.NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, d.Register(messageType, func(context.Context, domain.Envelope) error {
		return handlerErr
	}))
	return d
}

func pumpEnvelope(t *testing.T, messageType string) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(messageType, "ORDER-1", struct{}{}, time.Now().UTC())
	require.NoError(t, err)
	return env
}

func TestPumpAcksSuccess(t *testing.T) {
	t.Parallel()
	dedup := newFakeDedup()
	delivery := newFakeDelivery(pumpEnvelope(t, domain.MsgOrderCreated), 1)

	runPump(t, pumpDispatcher(t, domain.MsgOrderCreated, nil), dedup, delivery)

	outcome, _ := delivery.result(t)
	assert.Equal(t, "ack", outcome)
	assert.Contains(t, dedup.processed, delivery.env.MessageID)
}

func TestPumpDeadLettersPermanentFailures(t *testing.T) {
	t.Parallel()
	validationFailed := newFakeDelivery(pumpEnvelope(t, domain.MsgOrderCreated), 1)
	runPump(t, pumpDispatcher(t, domain.MsgOrderCreated, domain.ErrValidation), nil, validationFailed)
	outcome, reason := validationFailed.result(t)
	assert.Equal(t, "dead_letter", outcome)
	assert.NotEmpty(t, reason)

	// No handler registered for this discriminator at all.
	unknown := newFakeDelivery(pumpEnvelope(t, "BogusCommand"), 1)
	runPump(t, pumpDispatcher(t, domain.MsgOrderCreated, nil), nil, unknown)
	outcome, _ = unknown.result(t)
	assert.Equal(t, "dead_letter", outcome)
}

func TestPumpAbandonsRetryableFailures(t *testing.T) {
	t.Parallel()
	delivery := newFakeDelivery(pumpEnvelope(t, domain.MsgPaymentSucceeded), 1)
	runPump(t, pumpDispatcher(t, domain.MsgPaymentSucceeded, domain.ErrSagaNotFound), nil, delivery)
	outcome, _ := delivery.result(t)
	assert.Equal(t, "abandon", outcome)

	wrapped := newFakeDelivery(pumpEnvelope(t, domain.MsgPaymentSucceeded), 2)
	runPump(t, pumpDispatcher(t, domain.MsgPaymentSucceeded, errors.New("db timeout")), nil, wrapped)
	outcome, _ = wrapped.result(t)
	assert.Equal(t, "abandon", outcome)
}

func TestPumpDeadLettersAtDeliveryCeiling(t *testing.T) {
	t.Parallel()
	delivery := newFakeDelivery(pumpEnvelope(t, domain.MsgPaymentSucceeded), 3)
	runPump(t, pumpDispatcher(t, domain.MsgPaymentSucceeded, domain.ErrSagaNotFound), nil, delivery)
	outcome, _ := delivery.result(t)
	assert.Equal(t, "dead_letter", outcome)
}

func TestPumpAcksDuplicatesWithoutDispatch(t *testing.T) {
	t.Parallel()
	dedup := newFakeDedup()
	env := pumpEnvelope(t, domain.MsgOrderCreated)
	dedup.seen[env.MessageID] = true

	var dispatched bool
	d := application.NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, d.Register(domain.MsgOrderCreated, func(context.Context, domain.Envelope) error {
		dispatched = true
		return nil
	}))

	delivery := newFakeDelivery(env, 2)
	runPump(t, d, dedup, delivery)
	outcome, _ := delivery.result(t)
	assert.Equal(t, "ack", outcome)
	assert.False(t, dispatched, "duplicate must be settled without reaching the handler")
}

func TestPumpStopsWhenReceiverCloses(t *testing.T) {
	t.Parallel()
	delivery := newFakeDelivery(pumpEnvelope(t, domain.MsgOrderCreated), 1)
	receiver := &dyingReceiver{deliveries: make(chan ports.Delivery, 1)}
	receiver.deliveries <- delivery

	pump := NewPump(slog.New(slog.NewTextHandler(io.Discard, nil)),
		"orders", receiver, pumpDispatcher(t, domain.MsgOrderCreated, nil), nil, 4, 3)

	errCh := make(chan error, 1)
	go func() { errCh <- pump.Run(context.Background()) }()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ports.ErrReceiverClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pump kept running on a dead receiver")
	}
	outcome, _ := delivery.result(t)
	assert.Equal(t, "ack", outcome, "in-flight work settles before the pump stops")
}

func TestPumpDedupFailureIsBestEffort(t *testing.T) {
	t.Parallel()
	dedup := newFakeDedup()
	dedup.checkErr = errors.New("redis down")

	delivery := newFakeDelivery(pumpEnvelope(t, domain.MsgOrderCreated), 1)
	runPump(t, pumpDispatcher(t, domain.MsgOrderCreated, nil), dedup, delivery)
	outcome, _ := delivery.result(t)
	assert.Equal(t, "ack", outcome, "dedup outage must not block processing")
}
