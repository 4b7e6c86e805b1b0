package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes every event to a structured logger. It is the default
// sink when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a LogPublisher, falling back to slog.Default.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs each event at info level.
func (p *LogPublisher) Publish(ctx context.Context, evts []Event) error {
	for _, evt := range evts {
		p.logger.InfoContext(ctx, "domain event published",
			slog.String("event_id", evt.ID),
			slog.String("event", evt.Name),
			slog.String("aggregate_type", evt.AggregateType),
			slog.String("aggregate_id", evt.AggregateID),
		)
	}
	return nil
}
