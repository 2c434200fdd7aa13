package engine

import (
	"log/slog"
	"sync"
)

// EventType names a bus event.
type EventType string

const (
	EventInvocationStarted   EventType = "invocation.started"
	EventInvocationCompleted EventType = "invocation.completed"
	EventInvocationFailed    EventType = "invocation.failed"
	EventInvocationRejected  EventType = "invocation.rejected"
	EventForkBranchFailed    EventType = "fork.branch_failed"
	EventAsyncSubmitted      EventType = "async.submitted"
	EventAsyncCompleted      EventType = "async.completed"
	EventAsyncFailed         EventType = "async.failed"
	EventCatchHandled        EventType = "catch.handled"
)

// Event is one structured notification published by the engine.
type Event struct {
	// Seq is the logical clock value; strictly increasing per engine.
	Seq int64 `json:"seq"`

	Type EventType `json:"type"`

	// InvocationID identifies the invocation the event concerns.
	InvocationID string `json:"invocation_id"`

	// ParentID is the invocation that ran this one as a target, if any.
	ParentID string `json:"parent_id,omitempty"`

	// Class is the fully-qualified class name.
	Class string `json:"class"`

	// Operation is the Go method name.
	Operation string `json:"operation"`

	State State `json:"state,omitempty"`

	// Target names the fork branch, async target or catch handler.
	Target string `json:"target,omitempty"`

	// Worker is the worker the event was published from; empty for callers.
	Worker string `json:"worker,omitempty"`

	// Err is the failure, if any. Error is its message.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// eventQueue is an unbounded FIFO between a publisher and one subscriber.
//
// Publishing appends under the lock and never waits; the subscriber goroutine
// drains the queue when signalled.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1: coalesces wakeups
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// drain removes and returns every queued event.
func (q *eventQueue) drain() ([]Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.events
	// A fresh slice lets the delivered batch be collected independently.
	q.events = make([]Event, 0, 64)
	return batch, q.closed
}

// Wait returns the channel signalling that events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of undelivered events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes the subscriber.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Subscription is one registered bus subscriber.
type Subscription struct {
	name  string
	queue *eventQueue
	done  chan struct{}
	bus   *Bus
}

// Name returns the subscriber name.
func (s *Subscription) Name() string { return s.name }

// Pending returns the number of events not yet delivered.
func (s *Subscription) Pending() int { return s.queue.Len() }

// Close unsubscribes, delivers every event queued so far and waits for the
// handler to return.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.queue.Close()
	<-s.done
}

// Bus fans engine events out to subscribers.
//
// Every subscriber has its own unbounded queue and goroutine, so a slow or
// blocked subscriber delays only itself and Publish never blocks. Events reach
// each subscriber in publish order.
//
// Thread-safety: all methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
	logger *slog.Logger
}

// NewBus creates a bus without subscribers.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn under name. fn runs on the subscription's goroutine;
// a panic in fn is logged and the subscription keeps running.
func (b *Bus) Subscribe(name string, fn func(Event)) *Subscription {
	s := &Subscription{
		name:  name,
		queue: newEventQueue(),
		done:  make(chan struct{}),
		bus:   b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.queue.Close()
		close(s.done)
		return s
	}
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	go b.deliver(s, fn)
	return s
}

func (b *Bus) deliver(s *Subscription, fn func(Event)) {
	defer close(s.done)
	for {
		batch, closed := s.queue.drain()
		for _, e := range batch {
			b.call(s, fn, e)
		}
		if closed {
			return
		}
		<-s.queue.Wait()
	}
}

func (b *Bus) call(s *Subscription, fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				"subscriber", s.name,
				"event_type", e.Type,
				"panic", r,
			)
		}
	}()
	fn(e)
}

// Publish hands e to every subscriber without waiting for any of them.
func (b *Bus) Publish(e Event) {
	if e.Err != nil && e.Error == "" {
		e.Error = e.Err.Error()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.queue.Enqueue(e)
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x := range b.subs {
		if x == s {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Close unsubscribes everyone after delivering the events already published.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.queue.Close()
		<-s.done
	}
}
