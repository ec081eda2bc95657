package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
)

// SagaRepository is the durable keyed store for saga records. Single-key
// operations only; the compare-and-write in Update is the sole serialization
// point for conflicting updates to one order.
type SagaRepository interface {
	// Get returns domain.ErrSagaNotFound for unknown ids.
	Get(ctx context.Context, orderID string) (domain.OrderSaga, error)

	// Create persists a new record and returns domain.ErrDuplicateSaga if one
	// already exists for the id, so callers can treat re-creation as an
	// idempotent no-op.
	Create(ctx context.Context, saga domain.OrderSaga) error

	// Update atomically re-reads the record, applies mutate, and writes the
	// result back only if UpdatedAt still equals expected. Returns
	// domain.ErrConcurrencyConflict when the record moved underneath the
	// caller and domain.ErrSagaNotFound when it does not exist.
	Update(ctx context.Context, orderID string, expected time.Time, mutate func(*domain.OrderSaga)) (domain.OrderSaga, error)

	// ListByState serves the operational query surface backed by the state
	// index; a zero state lists most recent sagas regardless of state.
	ListByState(ctx context.Context, state domain.SagaState, limit int) ([]domain.OrderSaga, error)
}
