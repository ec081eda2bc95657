package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherRegister(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(discardLogger())

	noop := func(context.Context, domain.Envelope) error { return nil }
	require.NoError(t, d.Register(domain.MsgOrderCreated, noop))
	require.Error(t, d.Register(domain.MsgOrderCreated, noop), "double registration must be rejected")
	require.Error(t, d.Register("", noop))
	require.Error(t, d.Register(domain.MsgOrderCancelled, nil))
}

func TestDispatcherRegisteredValidatesCoverage(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(discardLogger())
	noop := func(context.Context, domain.Envelope) error { return nil }
	require.NoError(t, d.Register(domain.MsgOrderCreated, noop))

	require.NoError(t, d.Registered([]string{domain.MsgOrderCreated}))
	err := d.Registered(domain.InboundMessageTypes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.MsgOrderCancelled)
}

func TestDispatchUnknownMessageType(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(discardLogger())
	env, err := domain.NewEnvelope("BogusCommand", "ORDER-1", struct{}{}, time.Now().UTC())
	require.NoError(t, err)

	require.ErrorIs(t, d.Dispatch(context.Background(), env), domain.ErrUnknownMessageType)
}

func TestDispatchPassesSentinelsThrough(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(discardLogger())
	require.NoError(t, d.Register(domain.MsgOrderCreated, func(context.Context, domain.Envelope) error {
		return domain.ErrConcurrencyConflict
	}))
	env, err := domain.NewEnvelope(domain.MsgOrderCreated, "ORDER-1", struct{}{}, time.Now().UTC())
	require.NoError(t, err)

	dispatchErr := d.Dispatch(context.Background(), env)
	require.ErrorIs(t, dispatchErr, domain.ErrConcurrencyConflict)
	var handlerErr *domain.HandlerError
	assert.False(t, errors.As(dispatchErr, &handlerErr), "taxonomy errors must not be rewrapped")
}

func TestDispatchWrapsUnexpectedErrors(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(discardLogger())
	boom := errors.New("connection reset")
	require.NoError(t, d.Register(domain.MsgPaymentSucceeded, func(context.Context, domain.Envelope) error {
		return boom
	}))
	env, err := domain.NewEnvelope(domain.MsgPaymentSucceeded, "ORDER-7", struct{}{}, time.Now().UTC())
	require.NoError(t, err)

	dispatchErr := d.Dispatch(context.Background(), env)
	var handlerErr *domain.HandlerError
	require.ErrorAs(t, dispatchErr, &handlerErr)
	assert.Equal(t, domain.MsgPaymentSucceeded, handlerErr.MessageType)
	assert.Equal(t, "ORDER-7", handlerErr.OrderID)
	assert.ErrorIs(t, dispatchErr, boom)
}
