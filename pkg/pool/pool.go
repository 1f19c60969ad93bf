// Package pool provides bounded-parallelism execution with stable
// result ordering.
package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Config configures the worker pool.
type Config struct {
	MaxConcurrent int // Maximum concurrent work items (default: 8)
}

// Pool manages concurrent execution with bounded parallelism. A
// semaphore limits outstanding work; results land in submission order
// so callers get deterministic output regardless of completion order.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a worker pool.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 8
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// Item is a unit of work.
type Item[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of one work item.
type Result[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes all items with bounded parallelism and returns
// results indexed by submission order. All items run even if some
// fail; a cancelled context surfaces as ctx.Err() on the items that
// never started. onProgress, if set, is called after each completion
// with the running completed count.
func Process[T any](
	ctx context.Context,
	p *Pool,
	items []Item[T],
	onProgress func(completed, total int),
) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[T], len(items))
	sem := make(chan struct{}, p.config.MaxConcurrent)
	done := make(chan int, len(items))

	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(idx int, item Item[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = Result[T]{ID: item.ID, Err: ctx.Err()}
				done <- idx
				return
			}

			result, err := item.Execute(ctx)
			results[idx] = Result[T]{ID: item.ID, Result: result, Err: err}
			done <- idx
		}(i, item)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for range done {
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}

	return results
}
