// Package memory holds an in-process saga store with the same
// compare-and-write contract as the postgres repository. It backs tests and
// the local demo profile where no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

type SagaStore struct {
	mu    sync.Mutex
	sagas map[string]domain.OrderSaga
}

func NewSagaStore() *SagaStore {
	return &SagaStore{sagas: make(map[string]domain.OrderSaga)}
}

func (s *SagaStore) Get(_ context.Context, orderID string) (domain.OrderSaga, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saga, ok := s.sagas[orderID]
	if !ok {
		return domain.OrderSaga{}, fmt.Errorf("%w: %s", domain.ErrSagaNotFound, orderID)
	}
	return saga, nil
}

func (s *SagaStore) Create(_ context.Context, saga domain.OrderSaga) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sagas[saga.OrderID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSaga, saga.OrderID)
	}
	s.sagas[saga.OrderID] = saga
	return nil
}

func (s *SagaStore) Update(_ context.Context, orderID string, expected time.Time, mutate func(*domain.OrderSaga)) (domain.OrderSaga, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sagas[orderID]
	if !ok {
		return domain.OrderSaga{}, fmt.Errorf("%w: %s", domain.ErrSagaNotFound, orderID)
	}
	if !current.UpdatedAt.Equal(expected) {
		return domain.OrderSaga{}, fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, orderID)
	}
	next := current
	mutate(&next)
	s.sagas[orderID] = next
	return next, nil
}

func (s *SagaStore) ListByState(_ context.Context, state domain.SagaState, limit int) ([]domain.OrderSaga, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OrderSaga, 0, len(s.sagas))
	for _, saga := range s.sagas {
		if state != "" && saga.State != state {
			continue
		}
		out = append(out, saga)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ ports.SagaRepository = (*SagaStore)(nil)
