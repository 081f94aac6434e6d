// Package async provides a minimal generic future used to expose the
// transport's asynchronous operations (sendAsync, sendAndReceive) without
// forcing callers onto callback style or a bespoke executor abstraction.
package async

import (
	"context"
	"sync"
)

type result[T any] struct {
	val T
	err error
}

// Future is a single-assignment, single-consumer handle to the outcome of
// an asynchronous operation: the outcome is delivered to exactly one Wait
// call, and a Wait made after it has been taken returns context.Canceled.
// Zero value is not usable; obtain one from NewFuture.
type Future[T any] struct {
	ch chan result[T]
}

// NewFuture returns a Future together with the completion function that
// resolves it. The completion function may be called from any goroutine but
// only the first call has effect; later calls are silently ignored so a
// race between e.g. a reply and a timeout sweep can't double-resolve it.
func NewFuture[T any]() (Future[T], func(T, error)) {
	ch := make(chan result[T], 1)
	var once sync.Once
	complete := func(v T, err error) {
		once.Do(func() {
			ch <- result[T]{val: v, err: err}
			close(ch)
		})
	}
	return Future[T]{ch: ch}, complete
}

// Completed returns a Future that is already resolved with the given value
// and error.
func Completed[T any](v T, err error) Future[T] {
	f, complete := NewFuture[T]()
	complete(v, err)
	return f
}

// Wait blocks until the future resolves or ctx is done, whichever happens
// first.
func (f Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case r, ok := <-f.ch:
		if !ok {
			var zero T
			return zero, context.Canceled
		}
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
