package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/flowdeckio/api/internal/metrics"
	"github.com/flowdeckio/api/pkg/logger"
)

// BatchOptions tunes the batch processor.
type BatchOptions struct {
	// BatchSize is the number of items started per wave. The processor
	// fully joins each wave before starting the next.
	BatchSize int

	// MaxConcurrent caps in-flight items across the whole run, on top
	// of the wave size.
	MaxConcurrent int

	// InterBatchDelay is the pause between waves.
	InterBatchDelay time.Duration

	// InterItemStagger delays item i within a wave by i*stagger, so a
	// wave of requests does not land on a downstream service at once.
	InterItemStagger time.Duration
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.BatchSize < 1 {
		o.BatchSize = 1
	}
	if o.MaxConcurrent < 1 {
		o.MaxConcurrent = o.BatchSize
	}
	return o
}

// BatchItemResult is the settled outcome of one item. Every submitted
// item settles exactly once, index-aligned with the input slice.
type BatchItemResult[R any] struct {
	Index int
	Value R
	Err   error
}

// BatchProcessor runs homogeneous work items in bounded waves.
type BatchProcessor struct {
	opts   BatchOptions
	logger *logger.Logger
}

// NewBatchProcessor creates a processor with the given options.
func NewBatchProcessor(opts BatchOptions, log *logger.Logger) *BatchProcessor {
	return &BatchProcessor{
		opts:   opts.withDefaults(),
		logger: log.With("component", "batch_processor"),
	}
}

// Sequential derives a processor whose items run one at a time while
// keeping the wave size, inter-batch delay and stagger throttles.
// Callers whose items all contend on one admission ticket (every item
// targets the same workflow) must use this: overlapping items would
// settle as already-running conflicts instead of executing.
func (p *BatchProcessor) Sequential() *BatchProcessor {
	opts := p.opts
	opts.MaxConcurrent = 1
	return &BatchProcessor{opts: opts, logger: p.logger}
}

// RunBatches processes items in waves using the processor's options.
// One failed item never aborts the run: its error is captured in its
// slot and every other item still settles. A cancelled context settles
// all unstarted items with the context error.
func RunBatches[T, R any](
	ctx context.Context,
	p *BatchProcessor,
	items []T,
	fn func(ctx context.Context, item T) (R, error),
) []BatchItemResult[R] {
	opts := p.opts
	results := make([]BatchItemResult[R], len(items))
	if len(items) == 0 {
		return results
	}

	start := time.Now()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrent))

	for batchStart := 0; batchStart < len(items); batchStart += opts.BatchSize {
		if batchStart > 0 && opts.InterBatchDelay > 0 {
			select {
			case <-time.After(opts.InterBatchDelay):
			case <-ctx.Done():
			}
		}

		batchEnd := min(batchStart+opts.BatchSize, len(items))

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			offset := i - batchStart
			results[i].Index = i

			if err := ctx.Err(); err != nil {
				results[i].Err = err
				continue
			}

			wg.Add(1)
			go func(i, offset int) {
				defer wg.Done()

				if opts.InterItemStagger > 0 && offset > 0 {
					select {
					case <-time.After(time.Duration(offset) * opts.InterItemStagger):
					case <-ctx.Done():
						results[i].Err = ctx.Err()
						return
					}
				}

				if err := sem.Acquire(ctx, 1); err != nil {
					results[i].Err = err
					return
				}
				defer sem.Release(1)

				metrics.BatchItemsInFlight.Inc()
				defer metrics.BatchItemsInFlight.Dec()

				results[i].Value, results[i].Err = runItem(ctx, items[i], fn)
				if results[i].Err != nil {
					metrics.BatchItemsTotal.WithLabelValues("failed").Inc()
				} else {
					metrics.BatchItemsTotal.WithLabelValues("succeeded").Inc()
				}
			}(i, offset)
		}

		// Full join: the next wave starts only after every item of
		// this wave settled.
		wg.Wait()
	}

	return results
}

// runItem isolates a single item, converting panics into errors so one
// bad item cannot take down the wave.
func runItem[T, R any](ctx context.Context, item T, fn func(ctx context.Context, item T) (R, error)) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item panicked: %v", r)
		}
	}()
	return fn(ctx, item)
}
