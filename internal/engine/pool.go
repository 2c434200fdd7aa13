package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

// DefaultPoolSize is the size of a pool declared without one.
const DefaultPoolSize = 8

type workerKey struct{}

type worker struct {
	pool string
	id   string
}

// WorkerFromContext returns the identity of the pool worker running ctx, or
// "" when ctx belongs to a caller's goroutine.
func WorkerFromContext(ctx context.Context) string {
	if w, ok := ctx.Value(workerKey{}).(worker); ok {
		return w.id
	}
	return ""
}

type pool struct {
	name string
	size int
	sem  *semaphore.Weighted
	seq  atomic.Int64
}

// bind marks ctx as running on a fresh worker of p.
func (p *pool) bind(ctx context.Context) context.Context {
	id := fmt.Sprintf("%s-%d", p.name, p.seq.Add(1))
	return context.WithValue(ctx, workerKey{}, worker{pool: p.name, id: id})
}

// Pools is the set of named worker pools used by fork and async steps.
// Each pool bounds its concurrently running tasks with a semaphore.
//
// Thread-safety: all methods are safe for concurrent use. The set of pools is
// fixed by NewPools.
type Pools struct {
	pools  map[string]*pool
	logger *slog.Logger

	mu     sync.RWMutex // guards closed against wg.Add
	closed bool
	wg     sync.WaitGroup
}

// NewPools creates pools with the given sizes. The default pool always
// exists; sizes below 1 become 1.
func NewPools(sizes map[string]int) *Pools {
	ps := &Pools{pools: make(map[string]*pool, len(sizes)+1), logger: slog.Default()}
	if _, ok := sizes[plan.DefaultPool]; !ok {
		ps.add(plan.DefaultPool, DefaultPoolSize)
	}
	for name, size := range sizes {
		ps.add(name, size)
	}
	return ps
}

func (ps *Pools) add(name string, size int) {
	if size < 1 {
		size = 1
	}
	ps.pools[name] = &pool{name: name, size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Names returns the pool names in sorted order.
func (ps *Pools) Names() []string {
	names := make([]string, 0, len(ps.pools))
	for n := range ps.pools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Size returns the size of the named pool.
func (ps *Pools) Size(name string) (int, bool) {
	p, ok := ps.pools[name]
	if !ok {
		return 0, false
	}
	return p.size, true
}

func (ps *Pools) get(name string) (*pool, error) {
	if name == "" {
		name = plan.DefaultPool
	}
	p, ok := ps.pools[name]
	if !ok {
		return nil, newRuntimeError(ErrCodeUnknownPool, "", "worker pool %q is not configured", name)
	}
	return p, nil
}

// Run executes fn on a worker of the named pool and waits for it.
//
// When the pool is saturated and ctx already runs on one of its workers, fn
// runs without a slot: the caller holds a slot and is blocked on fn, so
// waiting for another slot could deadlock nested forks.
func (ps *Pools) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	p, err := ps.get(name)
	if err != nil {
		return err
	}
	if p.sem.TryAcquire(1) {
		defer p.sem.Release(1)
		return fn(p.bind(ctx))
	}
	if w, ok := ctx.Value(workerKey{}).(worker); ok && w.pool == p.name {
		return fn(ctx)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(p.bind(ctx))
}

// Submit schedules fn on a worker of the named pool and returns immediately.
//
// fn receives a context detached from ctx's cancellation: the submitter may
// finish long before fn runs. Submit fails only for unknown pools and after
// Shutdown.
func (ps *Pools) Submit(ctx context.Context, name string, fn func(context.Context)) error {
	p, err := ps.get(name)
	if err != nil {
		return err
	}

	ps.mu.RLock()
	if ps.closed {
		ps.mu.RUnlock()
		return newRuntimeError(ErrCodeClosed, "", "worker pool %q is shut down", p.name)
	}
	ps.wg.Add(1)
	ps.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer ps.wg.Done()
		// Acquire cannot fail on a context without cancellation.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		fn(p.bind(detached))
	}()
	return nil
}

// Wait blocks until every submitted task has finished.
func (ps *Pools) Wait() {
	ps.wg.Wait()
}

// Shutdown rejects further submissions and waits for running tasks until ctx
// is done.
func (ps *Pools) Shutdown(ctx context.Context) error {
	ps.mu.Lock()
	ps.closed = true
	ps.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ps.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		ps.logger.Warn("pool shutdown interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}
