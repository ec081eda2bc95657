package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []domain.Envelope
	sendErr  error
	closed   atomic.Bool
	totalRef *atomic.Int64
}

func (s *fakeSender) Send(_ context.Context, env domain.Envelope) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.totalRef.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSender) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeTransport struct {
	mu          sync.Mutex
	ensured     map[string]int
	senders     map[string]*fakeSender
	sendersMade int
	totalSends  atomic.Int64
	ensureErr   error
	senderErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		ensured: make(map[string]int),
		senders: make(map[string]*fakeSender),
	}
}

func (t *fakeTransport) EnsureDestination(_ context.Context, name string, _ ports.DestinationOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ensureErr != nil {
		return t.ensureErr
	}
	t.ensured[name]++
	return nil
}

func (t *fakeTransport) Sender(destination string) (ports.Sender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.senderErr != nil {
		return nil, t.senderErr
	}
	t.sendersMade++
	sender := &fakeSender{totalRef: &t.totalSends}
	t.senders[destination] = sender
	return sender, nil
}

func (t *fakeTransport) Receiver(string) (ports.Receiver, error) {
	return nil, errors.New("not implemented")
}

func (t *fakeTransport) Close() error { return nil }

func testPublisher(transport ports.Transport) *Publisher {
	return NewPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)), transport, ports.DestinationOptions{})
}

func TestPublisherProvisionsOnce(t *testing.T) {
	t.Parallel()
	transport := newFakeTransport()
	pub := testPublisher(transport)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Publish(ctx, domain.MsgPaymentRequested, "ORDER-1",
			domain.PaymentRequested{OrderID: "ORDER-1"}, "payments"))
	}

	assert.Equal(t, 1, transport.ensured["payments"])
	assert.Equal(t, 1, transport.sendersMade, "send handle is cached per destination")
	assert.Len(t, transport.senders["payments"].sent, 5)
}

func TestPublisherEnvelopeFields(t *testing.T) {
	t.Parallel()
	transport := newFakeTransport()
	pub := testPublisher(transport)

	require.NoError(t, pub.Publish(context.Background(), domain.MsgShippingRequested, "ORDER-9",
		domain.ShippingRequested{OrderID: "ORDER-9"}, "shipping"))

	sent := transport.senders["shipping"].sent
	require.Len(t, sent, 1)
	env := sent[0]
	assert.NotEmpty(t, env.MessageID)
	assert.Equal(t, "ORDER-9", env.CorrelationID)
	assert.Equal(t, domain.MsgShippingRequested, env.Subject)
	assert.Equal(t, domain.EnvelopeContentType, env.ContentType)
	assert.Equal(t, domain.MsgShippingRequested, env.Properties[domain.PropertyMessageType])

	var cmd domain.ShippingRequested
	require.NoError(t, env.DecodePayload(&cmd))
	assert.Equal(t, "ORDER-9", cmd.OrderID)
}

func TestPublisherConcurrentFirstUse(t *testing.T) {
	t.Parallel()
	transport := newFakeTransport()
	pub := testPublisher(transport)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pub.Publish(ctx, domain.MsgPaymentRequested, "ORDER-1",
				domain.PaymentRequested{OrderID: "ORDER-1"}, "payments"))
		}()
	}
	wg.Wait()

	// Racing first-time callers may each provision, but the cache keeps one
	// send handle per destination and no message is lost.
	assert.GreaterOrEqual(t, transport.ensured["payments"], 1)
	assert.EqualValues(t, 16, transport.totalSends.Load())
}

func TestPublisherTransportFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ensureBroken := newFakeTransport()
	ensureBroken.ensureErr = errors.New("broker down")
	err := testPublisher(ensureBroken).Publish(ctx, domain.MsgPaymentRequested, "ORDER-1",
		domain.PaymentRequested{OrderID: "ORDER-1"}, "payments")
	require.ErrorIs(t, err, domain.ErrTransport)

	sendBroken := newFakeTransport()
	pub := testPublisher(sendBroken)
	require.NoError(t, pub.Publish(ctx, domain.MsgPaymentRequested, "ORDER-1",
		domain.PaymentRequested{OrderID: "ORDER-1"}, "payments"))
	sendBroken.senders["payments"].sendErr = errors.New("channel closed")
	err = pub.Publish(ctx, domain.MsgPaymentRequested, "ORDER-1",
		domain.PaymentRequested{OrderID: "ORDER-1"}, "payments")
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestPublisherCloseReleasesSenders(t *testing.T) {
	t.Parallel()
	transport := newFakeTransport()
	pub := testPublisher(transport)

	require.NoError(t, pub.Publish(context.Background(), domain.MsgPaymentRequested, "ORDER-1",
		domain.PaymentRequested{OrderID: "ORDER-1"}, "payments"))
	require.NoError(t, pub.Close())
	assert.True(t, transport.senders["payments"].closed.Load())
}
