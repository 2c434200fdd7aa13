// Package advisor defines cross-cutting interceptors and their registry.
//
// An Advisor is consulted once per (class, operation) at compile time. When it
// matches it yields a Filter, which wraps every later invocation of that
// operation. Filters are layered by priority: lower values wrap further out,
// so they run first on the way in and last on the way out.
//
// Filters must call next at most once. Not calling it short-circuits the
// invocation; returning a *RejectedError (see Reject) marks the invocation as
// rejected rather than failed.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// ErrNextCalledTwice is returned when a filter invokes next more than once.
var ErrNextCalledTwice = errors.New("advisor: next called more than once")

// Invocation describes one call flowing through the filter layers.
// Filters may read it; they must not mutate Args.
type Invocation struct {
	// ID is the invocation identifier (UUIDv7 in production).
	ID string

	// Class is the managed class of the instance.
	Class *index.ClassDescriptor

	// Operation is the invoked operation.
	Operation *index.OperationDescriptor

	// Instance is the pointer to the business instance.
	Instance any

	// Args are the caller-supplied arguments.
	Args []any
}

// Key renders "Class.Method" for logging and cache keys.
func (inv *Invocation) Key() string {
	return inv.Operation.QualifiedName()
}

// Receiver returns the instance as a reflect.Value.
func (inv *Invocation) Receiver() reflect.Value {
	return reflect.ValueOf(inv.Instance)
}

// Next continues to the next layer and returns its result.
type Next func(ctx context.Context) (any, error)

// Filter wraps the invocation of one operation.
type Filter interface {
	Invoke(ctx context.Context, inv *Invocation, next Next) (any, error)
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(ctx context.Context, inv *Invocation, next Next) (any, error)

// Invoke implements Filter.
func (f FilterFunc) Invoke(ctx context.Context, inv *Invocation, next Next) (any, error) {
	return f(ctx, inv, next)
}

// Advisor is a pure predicate and factory over class operations.
type Advisor interface {
	// Name identifies the advisor in plans and events.
	Name() string

	// Priority orders advisors; lower wraps further out.
	Priority() int

	// Match returns the filter for op, or false when the advisor does not apply.
	Match(class *index.ClassDescriptor, op *index.OperationDescriptor) (Filter, bool)
}

// RejectedError signals that a filter declined to run the invocation.
type RejectedError struct {
	Advisor string
	Reason  string
}

func (e *RejectedError) Error() string {
	if e.Advisor == "" {
		return fmt.Sprintf("rejected: %s", e.Reason)
	}
	return fmt.Sprintf("rejected by %s: %s", e.Advisor, e.Reason)
}

// Reject returns the error a filter uses to decline an invocation.
func Reject(reason string) error {
	return &RejectedError{Reason: reason}
}

// Rejectf is Reject with a formatted reason.
func Rejectf(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// IsRejected returns true if err is or wraps a *RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// Guard wraps next so that a second call fails with ErrNextCalledTwice
// instead of running the inner layers again.
func Guard(next Next) Next {
	called := false
	return func(ctx context.Context) (any, error) {
		if called {
			return nil, ErrNextCalledTwice
		}
		called = true
		return next(ctx)
	}
}

// Func is a convenience Advisor built from a name, a priority, a selector and
// a filter. A nil Selector matches every operation.
type Func struct {
	AdvisorName     string
	AdvisorPriority int
	Selector        *Selector
	Filter          Filter
}

func (a *Func) Name() string  { return a.AdvisorName }
func (a *Func) Priority() int { return a.AdvisorPriority }

// Match implements Advisor.
func (a *Func) Match(class *index.ClassDescriptor, op *index.OperationDescriptor) (Filter, bool) {
	if a.Selector != nil && !a.Selector.Matches(class, op) {
		return nil, false
	}
	return a.Filter, true
}
