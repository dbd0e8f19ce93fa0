package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

// LogPublisher writes order events to the structured log. It backs local runs without a broker.
type LogPublisher struct {
	logger *zap.Logger
}

var _ services.OrderEventPublisher = (*LogPublisher)(nil)

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// PublishOrderEvent logs the event envelope at info level.
func (p *LogPublisher) PublishOrderEvent(_ context.Context, event services.OrderEvent) error {
	envelope := NewEnvelope(event)
	p.logger.Info("order event",
		zap.String("event_id", envelope.ID),
		zap.String("event_type", envelope.Type),
		zap.String("order_id", envelope.OrderID),
		zap.String("order_number", envelope.OrderNumber),
		zap.String("previous_status", envelope.PreviousStatus),
		zap.String("current_status", envelope.CurrentStatus),
		zap.Strings("farmer_ids", envelope.FarmerIDs),
		zap.String("actor_id", envelope.ActorID),
		zap.Time("occurred_at", envelope.OccurredAt),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
