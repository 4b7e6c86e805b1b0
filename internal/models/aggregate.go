package models

import (
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
)

// AggregateRoot carries the timestamps and the not-yet-collected events
// shared by every persisted entity.
type AggregateRoot struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	pending []events.Event
}

// Raise records an event to be collected on the next save.
func (a *AggregateRoot) Raise(evt events.Event) {
	a.pending = append(a.pending, evt)
}

// PullEvents returns and forgets the pending events.
func (a *AggregateRoot) PullEvents() []events.Event {
	out := a.pending
	a.pending = nil
	return out
}
