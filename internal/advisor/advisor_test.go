package advisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

type OrderService struct{}

func (s *OrderService) Checkout() string   { return "ok" }
func (s *OrderService) Notify_Mail() error { return nil }
func (s *OrderService) Notify_Sms() error  { return nil }

func passThrough() Filter {
	return FilterFunc(func(ctx context.Context, inv *Invocation, next Next) (any, error) {
		return next(ctx)
	})
}

func named(name string, priority int, sel string) *Func {
	f := &Func{AdvisorName: name, AdvisorPriority: priority, Filter: passThrough()}
	if sel != "" {
		f.Selector = MustSelector(sel)
	}
	return f
}

func operation(t *testing.T, method string) (*index.ClassDescriptor, *index.OperationDescriptor) {
	t.Helper()
	ix := index.New()
	cd, err := ix.ClassOf(&OrderService{})
	require.NoError(t, err)
	ops := ix.Resolve(cd, method)
	require.NotEmpty(t, ops)
	return cd, ops[0]
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistryOrdersByPriorityStable(t *testing.T) {
	r, err := NewRegistry(
		named("cache", 20, ""),
		named("limit", 10, ""),
		named("tx", 20, ""),
		named("metrics", 5, ""),
	)
	require.NoError(t, err)

	cd, op := operation(t, "checkout")
	var names []string
	for _, l := range r.Select(cd, op) {
		names = append(names, l.Advisor)
	}
	assert.Equal(t, []string{"metrics", "limit", "cache", "tx"}, names)
}

func TestRegistryFreeze(t *testing.T) {
	r, err := NewRegistry(named("a", 1, ""))
	require.NoError(t, err)

	r.Freeze()
	r.Freeze()
	assert.True(t, r.Frozen())

	err = r.Register(named("b", 2, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrozen))
	assert.Len(t, r.Advisors(), 1)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(named("a", 1, ""), named("a", 2, ""))
	assert.ErrorContains(t, err, "duplicate")

	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, r.Register(nil))
}

func TestRegistrySelectUsesSelectors(t *testing.T) {
	r, err := NewRegistry(
		named("checkout-only", 1, "*.Checkout"),
		named("notify-all", 2, "OrderService.notify"),
		named("sms", 3, "*.Notify_Sms"),
		named("other-class", 4, "Billing.*"),
	)
	require.NoError(t, err)

	cd, checkout := operation(t, "checkout")
	layers := r.Select(cd, checkout)
	require.Len(t, layers, 1)
	assert.Equal(t, "checkout-only", layers[0].Advisor)

	_, sms := operation(t, "notify_Sms")
	var names []string
	for _, l := range r.Select(cd, sms) {
		names = append(names, l.Advisor)
	}
	assert.Equal(t, []string{"sms"}, names, "logical names are upper-cased, so the lowercase glob does not match")
}

// =============================================================================
// Selectors
// =============================================================================

func TestParseSelector(t *testing.T) {
	_, err := ParseSelector("NoDot")
	assert.Error(t, err)
	_, err = ParseSelector("Class.")
	assert.Error(t, err)
	_, err = ParseSelector("[.x")
	assert.Error(t, err)

	s, err := ParseSelector("")
	require.NoError(t, err)
	assert.Equal(t, "*.*", s.String())

	cd, op := operation(t, "notify_Mail")
	assert.True(t, MustSelector("*.Notify").Matches(cd, op), "logical name")
	assert.True(t, MustSelector("Order*.Notify_*").Matches(cd, op))
	assert.True(t, MustSelector("**/advisor.OrderService.*").Matches(cd, op), "qualified name")
	assert.False(t, MustSelector("*/advisor.OrderService.*").Matches(cd, op))
	assert.Panics(t, func() { MustSelector("bad") })
}

// =============================================================================
// Filters
// =============================================================================

func TestGuardRejectsSecondCall(t *testing.T) {
	calls := 0
	next := Guard(func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	})

	v, err := next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = next(context.Background())
	assert.ErrorIs(t, err, ErrNextCalledTwice)
	assert.Equal(t, 1, calls)
}

func TestReject(t *testing.T) {
	err := Reject("quota exhausted")
	assert.True(t, IsRejected(err))
	assert.Equal(t, "rejected: quota exhausted", err.Error())

	wrapped := errors.Join(errors.New("outer"), Rejectf("limit %d", 3))
	assert.True(t, IsRejected(wrapped))
	assert.False(t, IsRejected(errors.New("plain")))

	re := &RejectedError{Advisor: "limit", Reason: "busy"}
	assert.Equal(t, "rejected by limit: busy", re.Error())
}

func TestFuncAdvisorWithoutSelectorMatchesAll(t *testing.T) {
	cd, op := operation(t, "checkout")
	a := named("all", 0, "")
	f, ok := a.Match(cd, op)
	assert.True(t, ok)
	assert.NotNil(t, f)

	inv := &Invocation{Class: cd, Operation: op, Instance: &OrderService{}}
	assert.Equal(t, "github.com/flyxxxxx/prototype-sub001/internal/advisor.OrderService.Checkout", inv.Key())
}
