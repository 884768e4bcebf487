// Package notify publishes committed state changes to interested listeners.
package notify

import (
	"sync"
	"time"
)

// EventType names a committed state change.
type EventType string

const (
	EventOrderFilled    EventType = "order.filled"
	EventOrderRejected  EventType = "order.rejected"
	EventOrderCanceled  EventType = "order.canceled"
	EventPositionOpened EventType = "position.opened"
	EventPositionClosed EventType = "position.closed"
	EventPositionUpdate EventType = "position.updated"
	EventLedgerEntry    EventType = "ledger.entry"
	EventAccountUpdate  EventType = "account.updated"
)

// Event is one notification. Events are only published after the unit of
// work that produced them has committed.
type Event struct {
	Type      EventType `json:"type"`
	AccountID string    `json:"account_id"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Broadcaster delivers events. Implementations must not block the caller
// for long; delivery failures are reported, never retried.
type Broadcaster interface {
	Publish(e Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Broadcaster.
func (Nop) Publish(Event) error { return nil }

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Broadcaster.
func (r *Recorder) Publish(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ Broadcaster = Nop{}
	_ Broadcaster = (*Recorder)(nil)
)
