package store

import (
	"context"
	"log/slog"

	"github.com/flyxxxxx/prototype-sub001/internal/engine"
)

// Journal writes every event of a bus to a Store.
type Journal struct {
	store  *Store
	sub    *engine.Subscription
	logger *slog.Logger
}

// Attach subscribes a journal to bus. Write failures are logged and the
// event is dropped; the engine never waits for the journal.
func Attach(s *Store, bus *engine.Bus, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{store: s, logger: logger}
	j.sub = bus.Subscribe("journal", j.write)
	return j
}

func (j *Journal) write(e engine.Event) {
	if err := j.store.WriteEvent(context.Background(), e); err != nil {
		j.logger.Error("journal write failed",
			"seq", e.Seq,
			"event_type", e.Type,
			"invocation_id", e.InvocationID,
			"error", err,
		)
	}
}

// Close flushes the events queued so far and detaches from the bus.
func (j *Journal) Close() {
	j.sub.Close()
}
