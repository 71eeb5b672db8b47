package async

import (
	"context"
	"sync"
)

// Future is the result of work running off the dispatch goroutine.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error

	mu        sync.Mutex
	callbacks []func(T, error)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns an already completed future.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.complete(v, nil)
	return f
}

// Failed returns an already failed future.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.val = v
		f.err = err
		cbs := f.callbacks
		f.callbacks = nil
		close(f.done)
		f.mu.Unlock()

		for _, cb := range cbs {
			cb(v, err)
		}
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx ends.
// Never call it from the dispatch goroutine.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the result without blocking. ok is false while pending.
func (f *Future[T]) Peek() (v T, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		return v, nil, false
	}
}

// OnComplete registers fn to run with the result. If the future is already
// complete fn runs immediately on the calling goroutine.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.val, f.err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Then returns a future completed with fn applied to f's result. fn runs on
// the goroutine that completes f.
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next := newFuture[U]()
	f.OnComplete(func(v T, err error) {
		u, err := fn(v, err)
		next.complete(u, err)
	})
	return next
}

// Compose chains a future-returning step onto f without blocking a worker.
func Compose[T, U any](f *Future[T], fn func(T, error) *Future[U]) *Future[U] {
	next := newFuture[U]()
	f.OnComplete(func(v T, err error) {
		fn(v, err).OnComplete(next.complete)
	})
	return next
}
