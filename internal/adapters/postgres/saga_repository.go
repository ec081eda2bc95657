package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
	"gorm.io/gorm"
)

type sagaRepository struct {
	db *gorm.DB
}

func NewSagaRepository(db *gorm.DB) ports.SagaRepository {
	return &sagaRepository{db: db}
}

func (r *sagaRepository) Get(ctx context.Context, orderID string) (domain.OrderSaga, error) {
	var rec orderSagaModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.OrderSaga{}, fmt.Errorf("%w: %s", domain.ErrSagaNotFound, orderID)
		}
		return domain.OrderSaga{}, err
	}
	return toDomainSaga(rec), nil
}

func (r *sagaRepository) Create(ctx context.Context, saga domain.OrderSaga) error {
	rec := toSagaModel(saga)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSaga, saga.OrderID)
		}
		return err
	}
	return nil
}

// Update is the compare-and-write of the store contract: the row is written
// only when updated_at still matches what the caller read, so two concurrent
// transitions against the same base version cannot both succeed.
func (r *sagaRepository) Update(ctx context.Context, orderID string, expected time.Time, mutate func(*domain.OrderSaga)) (domain.OrderSaga, error) {
	current, err := r.Get(ctx, orderID)
	if err != nil {
		return domain.OrderSaga{}, err
	}
	if !current.UpdatedAt.Equal(expected) {
		return domain.OrderSaga{}, fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, orderID)
	}

	next := current
	mutate(&next)
	rec := toSagaModel(next)

	res := r.db.WithContext(ctx).
		Model(&orderSagaModel{}).
		Where("order_id = ? AND updated_at = ?", orderID, expected).
		Updates(map[string]any{
			"state":              rec.State,
			"payment_processed":  rec.PaymentProcessed,
			"shipping_processed": rec.ShippingProcessed,
			"error_message":      rec.ErrorMessage,
			"updated_at":         rec.UpdatedAt,
		})
	if res.Error != nil {
		return domain.OrderSaga{}, res.Error
	}
	if res.RowsAffected == 0 {
		// Row moved (or vanished) between the read and the guarded write.
		if _, getErr := r.Get(ctx, orderID); getErr != nil {
			return domain.OrderSaga{}, getErr
		}
		return domain.OrderSaga{}, fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, orderID)
	}
	return next, nil
}

func (r *sagaRepository) ListByState(ctx context.Context, state domain.SagaState, limit int) ([]domain.OrderSaga, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Model(&orderSagaModel{}).Order("created_at desc").Limit(limit)
	if state != "" {
		q = q.Where("state = ?", string(state))
	}
	var rows []orderSagaModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OrderSaga, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainSaga(row))
	}
	return out, nil
}

var _ ports.SagaRepository = (*sagaRepository)(nil)
