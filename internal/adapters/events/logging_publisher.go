package events

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/financial-rails/M15-order-saga-service/internal/ports"
)

// LoggingPublisher stands in when no broker is configured, so the service
// still runs locally with transitions visible in the log stream.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, messageType, correlationID string, _ any, destination string) error {
	p.logger.InfoContext(ctx, "command published",
		"module", "events.logging_publisher",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "success",
		"message_type", messageType,
		"order_id", correlationID,
		"destination", destination,
	)
	return nil
}

var _ ports.CommandPublisher = (*LoggingPublisher)(nil)
