package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/logger"
)

func TestRunBatches_AllItemsSettle(t *testing.T) {
	p := NewBatchProcessor(BatchOptions{BatchSize: 3, MaxConcurrent: 2}, logger.NewNop())

	items := []int{1, 2, 3, 4, 5, 6, 7}
	results := RunBatches(context.Background(), p, items, func(_ context.Context, n int) (int, error) {
		return n * 10, nil
	})

	require.Len(t, results, len(items))
	for i, res := range results {
		assert.Equal(t, i, res.Index)
		require.NoError(t, res.Err)
		assert.Equal(t, items[i]*10, res.Value)
	}
}

func TestRunBatches_EmptyInput(t *testing.T) {
	p := NewBatchProcessor(BatchOptions{BatchSize: 5}, logger.NewNop())

	results := RunBatches(context.Background(), p, nil, func(_ context.Context, n int) (int, error) {
		t.Fatal("item function must not run for empty input")
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestRunBatches_FailureIsolation(t *testing.T) {
	p := NewBatchProcessor(BatchOptions{BatchSize: 4, MaxConcurrent: 4}, logger.NewNop())

	boom := errors.New("boom")
	items := []int{0, 1, 2, 3, 4, 5}
	results := RunBatches(context.Background(), p, items, func(_ context.Context, n int) (string, error) {
		if n == 2 {
			return "", boom
		}
		if n == 4 {
			panic("item exploded")
		}
		return fmt.Sprintf("ok-%d", n), nil
	})

	require.Len(t, results, 6)
	assert.ErrorIs(t, results[2].Err, boom)
	require.Error(t, results[4].Err)
	assert.Contains(t, results[4].Err.Error(), "item exploded")

	for _, i := range []int{0, 1, 3, 5} {
		require.NoError(t, results[i].Err)
		assert.Equal(t, fmt.Sprintf("ok-%d", i), results[i].Value)
	}
}

func TestRunBatches_ConcurrencyCap(t *testing.T) {
	const maxConcurrent = 3
	p := NewBatchProcessor(BatchOptions{BatchSize: 5, MaxConcurrent: maxConcurrent}, logger.NewNop())

	var inFlight, peak atomic.Int64
	items := make([]int, 11)
	RunBatches(context.Background(), p, items, func(_ context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int64(maxConcurrent))
	assert.Positive(t, peak.Load())
}

func TestRunBatches_FullJoinBetweenBatches(t *testing.T) {
	const batchSize = 4
	p := NewBatchProcessor(BatchOptions{BatchSize: batchSize, MaxConcurrent: batchSize}, logger.NewNop())

	var mu sync.Mutex
	started := make([]int, 0, 8)

	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	RunBatches(context.Background(), p, items, func(_ context.Context, n int) (struct{}, error) {
		mu.Lock()
		started = append(started, n)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return struct{}{}, nil
	})

	require.Len(t, started, 8)
	// Every first-wave item starts before any second-wave item.
	firstWave := started[:batchSize]
	for _, n := range firstWave {
		assert.Less(t, n, batchSize)
	}
}

func TestRunBatches_ContextCancellation(t *testing.T) {
	p := NewBatchProcessor(BatchOptions{BatchSize: 2, MaxConcurrent: 2, InterBatchDelay: 50 * time.Millisecond}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	items := []int{0, 1, 2, 3, 4, 5}

	var processed atomic.Int64
	results := RunBatches(ctx, p, items, func(_ context.Context, n int) (int, error) {
		if processed.Add(1) == 2 {
			cancel()
		}
		return n, nil
	})

	require.Len(t, results, len(items))
	var settledWithCancel int
	for _, res := range results {
		if errors.Is(res.Err, context.Canceled) {
			settledWithCancel++
		}
	}
	// The first wave completes, later items settle with the context
	// error instead of running.
	assert.Positive(t, settledWithCancel)
	assert.LessOrEqual(t, processed.Load(), int64(4))
}

func TestRunBatches_InterItemStagger(t *testing.T) {
	const stagger = 20 * time.Millisecond
	p := NewBatchProcessor(BatchOptions{BatchSize: 3, MaxConcurrent: 3, InterItemStagger: stagger}, logger.NewNop())

	startTimes := make([]time.Time, 3)
	var mu sync.Mutex

	items := []int{0, 1, 2}
	RunBatches(context.Background(), p, items, func(_ context.Context, n int) (struct{}, error) {
		mu.Lock()
		startTimes[n] = time.Now()
		mu.Unlock()
		return struct{}{}, nil
	})

	// Item 2 is staggered by 2*stagger relative to item 0.
	gap := startTimes[2].Sub(startTimes[0])
	assert.GreaterOrEqual(t, gap, stagger)
}

func TestBatchProcessor_Sequential(t *testing.T) {
	p := NewBatchProcessor(BatchOptions{BatchSize: 5, MaxConcurrent: 5, InterItemStagger: time.Millisecond}, logger.NewNop())
	seq := p.Sequential()

	assert.Equal(t, 1, seq.opts.MaxConcurrent)
	// Throttling options survive the derivation.
	assert.Equal(t, 5, seq.opts.BatchSize)
	assert.Equal(t, time.Millisecond, seq.opts.InterItemStagger)
	// The original processor keeps its concurrency.
	assert.Equal(t, 5, p.opts.MaxConcurrent)

	var inFlight, peak atomic.Int64
	items := make([]int, 8)
	results := RunBatches(context.Background(), seq, items, func(_ context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	require.Len(t, results, 8)
	assert.Equal(t, int64(1), peak.Load())
}

func TestBatchOptions_Defaults(t *testing.T) {
	opts := BatchOptions{}.withDefaults()
	assert.Equal(t, 1, opts.BatchSize)
	assert.Equal(t, 1, opts.MaxConcurrent)

	opts = BatchOptions{BatchSize: 8}.withDefaults()
	assert.Equal(t, 8, opts.MaxConcurrent)
}
