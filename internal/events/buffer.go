package events

import "sync"

// Buffer holds the events raised inside one unit of work until it commits.
// A Buffer must never be shared between units of work.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Collect appends events in the order given.
func (b *Buffer) Collect(evts ...Event) {
	if len(evts) == 0 {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evts...)
	b.mu.Unlock()
}

// Get returns a copy of the collected events.
func (b *Buffer) Get() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len reports how many events are pending.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Clear drops every pending event.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
