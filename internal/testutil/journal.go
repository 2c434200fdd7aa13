package testutil

import (
	"fmt"

	"github.com/flyxxxxx/prototype-sub001/internal/store"
)

// MemoryJournal opens an empty in-memory journal. Every call returns a
// separate database; it is gone once closed.
func MemoryJournal() (*store.Store, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	return st, nil
}
