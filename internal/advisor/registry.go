package advisor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// ErrFrozen is returned by Register after Freeze.
var ErrFrozen = errors.New("advisor: registry is frozen")

// Layer is one selected filter with the advisor it came from.
type Layer struct {
	Advisor  string
	Priority int
	Filter   Filter
}

// Registry is the priority-ordered list of advisors.
//
// Membership and order are fixed by Freeze; afterwards the registry is
// read-only and Select needs no locking beyond the read lock.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	advisors []Advisor
	frozen   bool
}

// NewRegistry creates an empty registry.
func NewRegistry(advisors ...Advisor) (*Registry, error) {
	r := &Registry{}
	for _, a := range advisors {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an advisor, keeping the list stable-sorted by priority.
// Advisors with equal priority keep registration order.
func (r *Registry) Register(a Advisor) error {
	if a == nil {
		return fmt.Errorf("advisor: nil advisor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %s: %w", a.Name(), ErrFrozen)
	}
	for _, existing := range r.advisors {
		if existing.Name() == a.Name() {
			return fmt.Errorf("advisor: duplicate name %q", a.Name())
		}
	}
	r.advisors = append(r.advisors, a)
	sort.SliceStable(r.advisors, func(i, j int) bool {
		return r.advisors[i].Priority() < r.advisors[j].Priority()
	})
	return nil
}

// Freeze fixes membership and order. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Advisors returns a copy of the ordered advisor list.
func (r *Registry) Advisors() []Advisor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Advisor, len(r.advisors))
	copy(out, r.advisors)
	return out
}

// Select returns the layers that apply to op, outermost first.
// Called once per operation at compile time.
func (r *Registry) Select(class *index.ClassDescriptor, op *index.OperationDescriptor) []Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var layers []Layer
	for _, a := range r.advisors {
		f, ok := a.Match(class, op)
		if !ok || f == nil {
			continue
		}
		layers = append(layers, Layer{Advisor: a.Name(), Priority: a.Priority(), Filter: f})
	}
	return layers
}
