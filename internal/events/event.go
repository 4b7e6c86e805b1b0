package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrPublish indicates committed events could not be handed to the publisher.
var ErrPublish = errors.New("publish domain events")

// Event records a state change of an aggregate.
type Event struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// New builds an event with a fresh identifier.
func New(name, aggregateType, aggregateID string, at time.Time, payload map[string]any) Event {
	return Event{
		ID:            uuid.NewString(),
		Name:          name,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    at.UTC(),
		Payload:       payload,
	}
}

// Publisher delivers events of a committed unit of work, in collection order.
type Publisher interface {
	Publish(ctx context.Context, evts []Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, evts []Event) error

// Publish calls f(ctx, evts).
func (f PublisherFunc) Publish(ctx context.Context, evts []Event) error {
	return f(ctx, evts)
}
