package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("executor closed")

const defaultWorkers = 8

// Executor runs store-facing work on background goroutines with a bound on
// how many run at once. Submitting never blocks the caller.
type Executor struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewExecutor(workers int) *Executor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules fn and returns its future.
func Submit[T any](e *Executor, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		var zero T
		f.complete(zero, ErrClosed)
		return f
	}
	e.wg.Add(1)
	e.mu.RUnlock()

	go func() {
		defer e.wg.Done()

		var zero T
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			f.complete(zero, ErrClosed)
			return
		}
		defer e.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				slog.Error("Async task panicked",
					slog.String("type", "error"),
					slog.Any("panic", r))
				f.complete(zero, fmt.Errorf("task panicked: %v", r))
			}
		}()

		v, err := fn(e.ctx)
		f.complete(v, err)
	}()

	return f
}

// Run is Submit for work without a result.
func Run(e *Executor, fn func(ctx context.Context) error) *Future[struct{}] {
	return Submit(e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Close stops accepting new work. Tasks already submitted still run.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Shutdown closes the executor and waits for submitted tasks until ctx ends,
// after which their context is cancelled.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return ctx.Err()
	}
}

// Wait blocks until every submitted task has returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}
