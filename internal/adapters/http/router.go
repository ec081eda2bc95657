package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

// Handler serves the operational surface: health probes, saga queries, and
// the demo order entry point that injects an OrderCreated command through the
// same transport path real producers use.
type Handler struct {
	logger      *slog.Logger
	sagas       ports.SagaRepository
	publisher   ports.CommandPublisher
	ordersQueue string
}

func NewHandler(logger *slog.Logger, sagas ports.SagaRepository, publisher ports.CommandPublisher, ordersQueue string) *Handler {
	return &Handler{logger: logger, sagas: sagas, publisher: publisher, ordersQueue: ordersQueue}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(handler.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ready") })

	r.Route("/v1", func(r chi.Router) {
		r.Post("/orders", handler.createOrder)
		r.Route("/sagas", func(r chi.Router) {
			r.Get("/", handler.listSagas)
			r.Get("/{order_id}", handler.getSaga)
		})
	})
	return r
}
