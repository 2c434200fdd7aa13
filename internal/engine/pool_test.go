package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

func TestPools_New(t *testing.T) {
	ps := NewPools(map[string]int{"io": 4, "tiny": 0})

	assert.Equal(t, []string{"default", "io", "tiny"}, ps.Names())

	size, ok := ps.Size(plan.DefaultPool)
	require.True(t, ok)
	assert.Equal(t, DefaultPoolSize, size)

	size, _ = ps.Size("io")
	assert.Equal(t, 4, size)

	size, _ = ps.Size("tiny")
	assert.Equal(t, 1, size, "sizes below 1 are raised to 1")

	_, ok = ps.Size("missing")
	assert.False(t, ok)
}

func TestPools_DefaultSizeOverride(t *testing.T) {
	ps := NewPools(map[string]int{plan.DefaultPool: 2})
	size, _ := ps.Size(plan.DefaultPool)
	assert.Equal(t, 2, size)
}

func TestPools_RunUnknownPool(t *testing.T) {
	ps := NewPools(nil)

	err := ps.Run(context.Background(), "missing", func(context.Context) error { return nil })
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeUnknownPool, re.Code)
}

func TestPools_RunBindsWorker(t *testing.T) {
	ps := NewPools(map[string]int{"io": 2})

	var got string
	err := ps.Run(context.Background(), "io", func(ctx context.Context) error {
		got = WorkerFromContext(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "io-1", got)
	assert.Empty(t, WorkerFromContext(context.Background()))
}

func TestPools_RunEmptyNameUsesDefault(t *testing.T) {
	ps := NewPools(nil)

	var got string
	require.NoError(t, ps.Run(context.Background(), "", func(ctx context.Context) error {
		got = WorkerFromContext(ctx)
		return nil
	}))
	assert.True(t, strings.HasPrefix(got, "default-"))
}

func TestPools_RunBoundsConcurrency(t *testing.T) {
	ps := NewPools(map[string]int{"io": 2})

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ps.Run(context.Background(), "io", func(context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestPools_NestedRunOnSaturatedPool(t *testing.T) {
	ps := NewPools(map[string]int{"solo": 1})

	done := make(chan string, 1)
	go func() {
		_ = ps.Run(context.Background(), "solo", func(ctx context.Context) error {
			return ps.Run(ctx, "solo", func(inner context.Context) error {
				done <- WorkerFromContext(inner)
				return nil
			})
		})
	}()

	select {
	case w := <-done:
		assert.Equal(t, "solo-1", w, "nested run reuses the caller's worker")
	case <-time.After(2 * time.Second):
		t.Fatal("nested run on a saturated pool deadlocked")
	}
}

func TestPools_RunHonorsCancellationWhileWaiting(t *testing.T) {
	ps := NewPools(map[string]int{"solo": 1})

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = ps.Run(context.Background(), "solo", func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ps.Run(ctx, "solo", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPools_SubmitDetachesCancellation(t *testing.T) {
	ps := NewPools(nil)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var ctxErr atomic.Value
	var worker atomic.Value

	require.NoError(t, ps.Submit(ctx, "", func(wctx context.Context) {
		<-release
		ctxErr.Store(wctx.Err() == nil)
		worker.Store(WorkerFromContext(wctx))
	}))
	cancel()
	close(release)
	ps.Wait()

	assert.Equal(t, true, ctxErr.Load())
	assert.True(t, strings.HasPrefix(worker.Load().(string), "default-"))
}

func TestPools_Shutdown(t *testing.T) {
	ps := NewPools(nil)

	var ran atomic.Bool
	require.NoError(t, ps.Submit(context.Background(), "", func(context.Context) {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	}))

	require.NoError(t, ps.Shutdown(context.Background()))
	assert.True(t, ran.Load(), "shutdown waits for running tasks")

	err := ps.Submit(context.Background(), "", func(context.Context) {})
	assert.True(t, IsClosed(err))
}

func TestPools_ShutdownInterrupted(t *testing.T) {
	ps := NewPools(nil)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, ps.Submit(context.Background(), "", func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ps.Shutdown(ctx), context.DeadlineExceeded)
}
