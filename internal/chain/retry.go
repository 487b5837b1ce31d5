package chain

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultRetryAttempts and DefaultRetryDelay are the fixed retry
	// budget for transient chain queries.
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

// Retry runs fn up to attempts times with a fixed delay between tries.
// ErrNotConnected is terminal and returned immediately; so is context
// cancellation.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotConnected) {
			return err
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// ChunkResult pairs one input item with its outcome.
type ChunkResult[T, R any] struct {
	Item T
	Out  R
	Err  error
}

// InChunks runs fn over items with bounded concurrency: concurrent within
// a chunk of at most size, sequential between chunks. All items are
// settled; callers decide what to do with per-item errors. Results keep
// input order.
func InChunks[T, R any](ctx context.Context, items []T, size int, fn func(context.Context, T) (R, error)) []ChunkResult[T, R] {
	if size < 1 {
		size = 1
	}
	results := make([]ChunkResult[T, R], len(items))
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out, err := fn(ctx, items[i])
				results[i] = ChunkResult[T, R]{Item: items[i], Out: out, Err: err}
			}(i)
		}
		wg.Wait()
	}
	return results
}
