// Package testutil holds helpers for running engines deterministically in
// tests and conformance scenarios.
package testutil

import (
	"sync"

	"github.com/flyxxxxx/prototype-sub001/internal/engine"
)

// EventRecorder keeps every event it is handed, in delivery order.
//
// Subscribe Add to a bus and close the subscription before reading; closing
// delivers every queued event first.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type EventRecorder struct {
	mu     sync.Mutex
	events []engine.Event
}

// Add records e.
func (r *EventRecorder) Add(e engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Event(nil), r.events...)
}

// Types returns the type of every recorded event.
func (r *EventRecorder) Types() []engine.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]engine.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// Reset drops the recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
