package postgres

import "github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"

func toDomainSaga(m orderSagaModel) domain.OrderSaga {
	saga := domain.OrderSaga{
		OrderID: m.OrderID, Amount: m.Amount, State: domain.SagaState(m.State),
		PaymentProcessed: m.PaymentProcessed, ShippingProcessed: m.ShippingProcessed,
		CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.ErrorMessage != nil {
		saga.ErrorMessage = *m.ErrorMessage
	}
	return saga
}

func toSagaModel(s domain.OrderSaga) orderSagaModel {
	m := orderSagaModel{
		OrderID: s.OrderID, Amount: s.Amount, State: string(s.State),
		PaymentProcessed: s.PaymentProcessed, ShippingProcessed: s.ShippingProcessed,
		CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
	if s.ErrorMessage != "" {
		msg := s.ErrorMessage
		m.ErrorMessage = &msg
	}
	return m
}
