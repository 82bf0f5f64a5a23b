// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package future provides a single-assignment, typed future, used to model
// asynchronous completion without a dedicated goroutine per waiter.
package future

import (
	"context"
	"errors"
	"sync"
)

// State represents the lifecycle state of a [Future].
// A future starts in [Pending] state and transitions to either [Resolved] or
// [Rejected]. State transitions are irreversible.
type State int

const (
	// Pending indicates the operation is still in progress.
	Pending State = iota

	// Resolved indicates the operation completed successfully with a value.
	Resolved

	// Rejected indicates the operation failed with an error.
	Rejected
)

// ErrPending is returned by Future.Result if the future has not settled.
var ErrPending = errors.New(`future: pending`)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Resolved:
		return "Resolved"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Future is the eventual result of an asynchronous operation.
// It is safe for concurrent use. The zero value is not usable, see New.
type Future[T any] struct {
	value     T
	err       error
	done      chan struct{}
	callbacks []func(value T, err error)
	state     State
	mu        sync.Mutex
}

// New returns a pending Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// ResolvedWith returns a Future that is already resolved with value.
func ResolvedWith[T any](value T) *Future[T] {
	f := New[T]()
	f.Resolve(value)
	return f
}

// RejectedWith returns a Future that is already rejected with err.
func RejectedWith[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// State returns the current [State].
func (f *Future[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done returns a channel that is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled value and error, or [ErrPending].
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Pending {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Await blocks until the future settles, or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnSettled registers fn to be called once the future settles. If it has
// already settled, fn is called immediately, on the calling goroutine.
// Otherwise, fn is called on the goroutine that settles the future.
func (f *Future[T]) OnSettled(fn func(value T, err error)) {
	if fn == nil {
		panic(`future: nil callback`)
	}
	f.mu.Lock()
	if f.state == Pending {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	fn(value, err)
}

// Resolve settles the future with value, returning false if it had already
// settled.
func (f *Future[T]) Resolve(value T) bool {
	return f.settle(Resolved, value, nil)
}

// Reject settles the future with err, returning false if it had already
// settled. A nil err is replaced with a generic error, so that rejection is
// always observable.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = errors.New(`future: rejected with nil error`)
	}
	var zero T
	return f.settle(Rejected, zero, err)
}

func (f *Future[T]) settle(state State, value T, err error) bool {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return false
	}
	f.state = state
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	// callbacks run outside the lock, so they may inspect the future
	for _, fn := range callbacks {
		fn(value, err)
	}
	return true
}
