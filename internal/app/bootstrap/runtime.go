package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/adapters/events"
	httpadapter "github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/adapters/http"
	kafkaadapter "github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/adapters/kafka"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/adapters/postgres"
	rabbitadapter "github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/adapters/rabbit"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	pumps      []*eventadapter.Pump
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	var closers []io.Closer

	sagas := ports.SagaRepository(memory.NewSagaStore())
	if cfg.DatabaseURL != "" {
		db, dbErr := postgres.Connect(ctx, logger, cfg.DatabaseURL, cfg.MaxDBConns)
		if dbErr != nil {
			return nil, dbErr
		}
		sqlDB, sqlErr := db.DB()
		if sqlErr != nil {
			return nil, sqlErr
		}
		if migrateErr := postgres.RunMigrations(ctx, logger, db); migrateErr != nil {
			_ = sqlDB.Close()
			return nil, migrateErr
		}
		sagas = postgres.NewSagaRepository(db)
		closers = append(closers, sqlDB)
	} else {
		logger.WarnContext(ctx, "no database configured, using in-memory saga store")
	}

	var transport ports.Transport
	switch cfg.BrokerKind {
	case "rabbitmq":
		rabbitTransport, dialErr := rabbitadapter.Dial(ctx, cfg.AMQPURL, logger)
		if dialErr != nil {
			closeAll(closers)
			return nil, dialErr
		}
		transport = rabbitTransport
	case "kafka":
		kafkaTransport, newErr := kafkaadapter.New(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, logger)
		if newErr != nil {
			closeAll(closers)
			return nil, newErr
		}
		transport = kafkaTransport
	case "none":
		logger.WarnContext(ctx, "no broker configured, publishing to log only")
	}

	publisher := ports.CommandPublisher(eventadapter.NewLoggingPublisher(logger))
	if transport != nil {
		realPublisher := eventadapter.NewPublisher(logger, transport, ports.DestinationOptions{
			Retention:     cfg.DestinationRetention,
			MaxDeliveries: cfg.MaxDeliveryAttempts,
		})
		publisher = realPublisher
		closers = append(closers, realPublisher, transport)
	}

	var dedup ports.MessageDedup
	if cfg.RedisURL != "" {
		redisClient, redisErr := cache.Connect(ctx, cfg.RedisURL)
		if redisErr != nil {
			closeAll(closers)
			return nil, redisErr
		}
		dedup = cache.NewRedisMessageDedup(redisClient, cfg.DedupTTL)
		closers = append(closers, redisClient)
	}

	service := application.NewService(application.Dependencies{
		Config: application.Config{
			PaymentsQueue: cfg.PaymentsQueue,
			ShippingQueue: cfg.ShippingQueue,
		},
		Logger:    logger,
		Sagas:     sagas,
		Publisher: publisher,
	})
	dispatcher := application.NewDispatcher(logger)
	if err := service.RegisterHandlers(dispatcher); err != nil {
		closeAll(closers)
		return nil, err
	}

	var pumps []*eventadapter.Pump
	if transport != nil {
		opts := ports.DestinationOptions{Retention: cfg.DestinationRetention, MaxDeliveries: cfg.MaxDeliveryAttempts}
		for _, destination := range cfg.PumpDestinations {
			if ensureErr := transport.EnsureDestination(ctx, destination, opts); ensureErr != nil {
				closeAll(closers)
				return nil, ensureErr
			}
			receiver, recvErr := transport.Receiver(destination)
			if recvErr != nil {
				closeAll(closers)
				return nil, recvErr
			}
			closers = append(closers, receiver)
			pumps = append(pumps, eventadapter.NewPump(
				logger, destination, receiver, dispatcher, dedup, cfg.MaxInFlight, cfg.MaxDeliveryAttempts))
		}
	}

	handler := httpadapter.NewHandler(logger, sagas, publisher, cfg.OrdersQueue)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		pumps:      pumps,
		cleanupFn: func(context.Context) {
			closeAll(closers)
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(r.pumps) == 0 {
		r.logger.WarnContext(ctx, "no pumps configured, worker idle")
		<-ctx.Done()
		r.cleanupFn(context.Background())
		return nil
	}

	errCh := make(chan error, len(r.pumps))
	for _, pump := range r.pumps {
		go func(pump *eventadapter.Pump) {
			if err := pump.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(pump)
	}

	select {
	case <-ctx.Done():
		r.cleanupFn(context.Background())
		return nil
	case err := <-errCh:
		r.cleanupFn(context.Background())
		return err
	}
}

func closeAll(closers []io.Closer) {
	for _, closer := range closers {
		_ = closer.Close()
	}
}
