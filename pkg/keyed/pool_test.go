package keyed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workItem struct {
	key string
	seq int
}

func TestSubmitBeforeStart(t *testing.T) {
	pool := NewPool(2, 4, func(w workItem) string { return w.key }, func(context.Context, workItem) error { return nil })
	err := pool.Submit(context.Background(), workItem{key: "a"})
	assert.ErrorIs(t, err, ErrPoolNotStarted)
}

func TestPerKeyOrderPreserved(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]int)

	pool := NewPool(4, 16, func(w workItem) string { return w.key }, func(_ context.Context, w workItem) error {
		mu.Lock()
		seen[w.key] = append(seen[w.key], w.seq)
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	keys := []string{"u1", "u2", "u3", "u4", "u5"}
	for seq := 0; seq < 50; seq++ {
		for _, k := range keys {
			require.NoError(t, pool.Submit(ctx, workItem{key: k, seq: seq}))
		}
	}

	require.NoError(t, pool.Stop(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	for _, k := range keys {
		require.Len(t, seen[k], 50)
		for i, seq := range seen[k] {
			assert.Equal(t, i, seq, "key %s out of order", k)
		}
	}
}

func TestSameKeyNeverConcurrent(t *testing.T) {
	var active sync.Map
	violations := make(chan string, 1)

	pool := NewPool(2, 8, func(w workItem) string { return w.key }, func(_ context.Context, w workItem) error {
		if _, loaded := active.LoadOrStore(w.key, true); loaded {
			select {
			case violations <- w.key:
			default:
			}
		}
		time.Sleep(time.Millisecond)
		active.Delete(w.key)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(ctx, workItem{key: "hot", seq: i}))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	select {
	case key := <-violations:
		t.Fatalf("concurrent processing detected for key %s", key)
	default:
	}
}

func TestStopDrainsQueuedWork(t *testing.T) {
	var processed int64
	var mu sync.Mutex

	pool := NewPool(1, 64, func(w workItem) string { return w.key }, func(_ context.Context, w workItem) error {
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	for i := 0; i < 50; i++ {
		require.NoError(t, pool.Submit(ctx, workItem{key: "k", seq: i}))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(50), processed)

	stats := pool.Stats()
	assert.Equal(t, int64(50), stats.Submitted)
	assert.Equal(t, int64(50), stats.Processed)
}

func TestFatalHandlerStopsIntake(t *testing.T) {
	fatal := errors.New("state invariant violated")
	var handled error
	var handledMu sync.Mutex

	pool := NewPool(1, 4,
		func(w workItem) string { return w.key },
		func(_ context.Context, w workItem) error {
			if w.seq == 1 {
				return fatal
			}
			return nil
		},
		WithFatalHandler[workItem](
			func(err error) bool { return errors.Is(err, fatal) },
			func(err error) {
				handledMu.Lock()
				handled = err
				handledMu.Unlock()
			},
		),
	)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Submit(ctx, workItem{key: "k", seq: 0}))
	require.NoError(t, pool.Submit(ctx, workItem{key: "k", seq: 1}))

	// Wait for escalation to propagate.
	require.Eventually(t, func() bool {
		return pool.Submit(ctx, workItem{key: "k", seq: 2}) != nil
	}, time.Second, 5*time.Millisecond)

	handledMu.Lock()
	assert.ErrorIs(t, handled, fatal)
	handledMu.Unlock()

	assert.NoError(t, pool.Stop(time.Second))
}

func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool(1, 4, func(w workItem) string { return w.key }, func(context.Context, workItem) error { return nil })
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Stop(time.Second))

	err := pool.Submit(ctx, workItem{key: "k"})
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestDoubleStart(t *testing.T) {
	pool := NewPool(1, 4, func(w workItem) string { return w.key }, func(context.Context, workItem) error { return nil })
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)
	require.NoError(t, pool.Stop(time.Second))
}

func TestStopUnblocksPendingSubmit(t *testing.T) {
	gate := make(chan struct{})
	pool := NewPool(1, 1,
		func(w workItem) string { return w.key },
		func(_ context.Context, _ workItem) error {
			<-gate
			return nil
		})

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	// Occupy the worker and fill the shard queue.
	require.NoError(t, pool.Submit(ctx, workItem{key: "k", seq: 0}))
	require.NoError(t, pool.Submit(ctx, workItem{key: "k", seq: 1}))

	// This submit blocks on the full queue.
	blocked := make(chan error, 1)
	go func() {
		blocked <- pool.Submit(ctx, workItem{key: "k", seq: 2})
	}()

	time.Sleep(20 * time.Millisecond)

	stopErr := make(chan error, 1)
	go func() {
		stopErr <- pool.Stop(5 * time.Second)
	}()

	// Stop must reject the parked submitter instead of panicking on a
	// closed queue.
	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrPoolStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("submit still blocked after stop")
	}

	close(gate)
	require.NoError(t, <-stopErr)
}

func TestFatalStopsAllShards(t *testing.T) {
	pool := NewPool(2, 16,
		func(w workItem) string { return w.key },
		func(context.Context, workItem) error { return nil })

	// Pick keys that land on distinct shards.
	var keyA, keyB string
	for i := 0; keyA == "" || keyB == ""; i++ {
		k := "user-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		switch pool.shardFor(k) {
		case 0:
			if keyA == "" {
				keyA = k
			}
		case 1:
			if keyB == "" {
				keyB = k
			}
		}
	}

	fatal := errors.New("state invariant violated")
	gate := make(chan struct{})
	parked := make(chan struct{})
	var parkOnce sync.Once
	var completed int64

	pool = NewPool(2, 16,
		func(w workItem) string { return w.key },
		func(_ context.Context, w workItem) error {
			if w.key == keyB {
				return fatal
			}
			parkOnce.Do(func() { close(parked) })
			<-gate
			atomic.AddInt64(&completed, 1)
			return nil
		},
		WithFatalHandler[workItem](
			func(err error) bool { return errors.Is(err, fatal) },
			func(error) {},
		),
	)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	// Park shard A's worker on its first item, then queue more behind it.
	require.NoError(t, pool.Submit(ctx, workItem{key: keyA, seq: 0}))
	<-parked
	for seq := 1; seq <= 5; seq++ {
		require.NoError(t, pool.Submit(ctx, workItem{key: keyA, seq: seq}))
	}

	// A fatal error on shard B must silence shard A too.
	require.NoError(t, pool.Submit(ctx, workItem{key: keyB, seq: 0}))
	require.Eventually(t, func() bool {
		return errors.Is(pool.Submit(ctx, workItem{key: keyA, seq: 99}), ErrPoolStopped)
	}, time.Second, 5*time.Millisecond)

	close(gate)
	require.NoError(t, pool.Stop(5*time.Second))

	// Only the item already being processed finished; the queued ones
	// were dropped rather than emitted after the fatal condition.
	assert.EqualValues(t, 1, atomic.LoadInt64(&completed))
}
