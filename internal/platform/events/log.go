package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/eventdesk/api/internal/services"
)

// LogPublisher writes events to the logger instead of a broker. It backs the "none" transport
// so local runs still show what would have been published.
type LogPublisher struct {
	logger *zap.Logger
}

var _ services.OrderEventPublisher = (*LogPublisher)(nil)

// NewLogPublisher returns a publisher that logs at debug level.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) PublishOrderEvent(_ context.Context, event services.OrderEvent) error {
	p.logger.Debug("order event",
		zap.String("type", event.Type),
		zap.String("orderId", event.OrderID),
		zap.String("orderNumber", event.OrderNumber),
		zap.String("previousStatus", string(event.PreviousStatus)),
		zap.String("currentStatus", string(event.CurrentStatus)),
		zap.Time("occurredAt", event.OccurredAt),
	)
	return nil
}

func (p *LogPublisher) Close(context.Context) error { return nil }
