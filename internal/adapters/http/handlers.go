package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/domain"
)

type createOrderRequest struct {
	OrderID string          `json:"order_id,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
}

type sagaResponse struct {
	OrderID           string `json:"order_id"`
	Amount            string `json:"amount"`
	State             string `json:"state"`
	PaymentProcessed  bool   `json:"payment_processed"`
	ShippingProcessed bool   `json:"shipping_processed"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// createOrder synthesizes one OrderCreated command and publishes it to the
// orders destination, where the pump picks it up like any external event.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be positive")
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		orderID = newOrderID(time.Now().UTC())
	}
	if len(orderID) > domain.MaxOrderIDLength {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("order_id exceeds %d characters", domain.MaxOrderIDLength))
		return
	}

	cmd := domain.OrderCreated{OrderID: orderID, Amount: req.Amount.Round(2)}
	if err := h.publisher.Publish(r.Context(), domain.MsgOrderCreated, orderID, cmd, h.ordersQueue); err != nil {
		h.logger.ErrorContext(r.Context(), "order injection failed",
			"module", "http.handlers",
			"layer", "adapter",
			"operation", "create_order",
			"outcome", "failure",
			"order_id", orderID,
			"error", err,
		)
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "could not publish order command")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"order_id": orderID,
		"amount":   cmd.Amount.String(),
	})
}

func (h *Handler) getSaga(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	saga, err := h.sagas.Get(r.Context(), orderID)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, toSagaResponse(saga))
}

func (h *Handler) listSagas(w http.ResponseWriter, r *http.Request) {
	var state domain.SagaState
	if raw := r.URL.Query().Get("state"); raw != "" {
		parsed, ok := domain.ParseSagaState(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown saga state")
			return
		}
		state = parsed
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	sagas, err := h.sagas.ListByState(r.Context(), state, limit)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	out := make([]sagaResponse, 0, len(sagas))
	for _, saga := range sagas {
		out = append(out, toSagaResponse(saga))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sagas": out})
}

func toSagaResponse(saga domain.OrderSaga) sagaResponse {
	return sagaResponse{
		OrderID:           saga.OrderID,
		Amount:            saga.Amount.StringFixed(2),
		State:             string(saga.State),
		PaymentProcessed:  saga.PaymentProcessed,
		ShippingProcessed: saga.ShippingProcessed,
		CreatedAt:         saga.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:         saga.UpdatedAt.Format(time.RFC3339Nano),
		ErrorMessage:      saga.ErrorMessage,
	}
}

func newOrderID(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("ORDER-%s-%s", now.Format("20060102-150405"), suffix)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": message}})
}
