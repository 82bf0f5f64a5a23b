// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package inputqueue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-iothread/timer"
)

// result is the outcome of a dequeue. See Queue.Dequeue.
type result[T any] struct {
	value T
	err   error
	ok    bool
	// eos marks a graceful end-of-stream, err is io.EOF
	eos bool
}

func (it item[T]) result() result[T] {
	return result[T]{value: it.value, err: it.err, ok: true}
}

// reader is an outstanding dequeue request, owned by the queue until it is
// completed, or removes itself on expiry.
type reader[T any] interface {
	complete(res result[T])
}

// waiter is an outstanding request for item availability.
type waiter interface {
	complete(available bool, err error)
}

// expiry is the shared timeout race: the request may only report a timeout
// if it was still registered, otherwise a completion is in flight.
type expiry interface {
	remove() bool
}

type waitReader[T any] struct {
	ch chan result[T]
}

func newWaitReader[T any]() *waitReader[T] {
	return &waitReader[T]{ch: make(chan result[T], 1)}
}

func (r *waitReader[T]) complete(res result[T]) { r.ch <- res }

func (r *waitReader[T]) wait(ctx context.Context, timeout time.Duration, e expiry) result[T] {
	res, ok := blockOn(ctx, timeout, r.ch, e)
	if !ok {
		// nil on timeout
		res.err = ctx.Err()
	}
	return res
}

type waitResult struct {
	err       error
	available bool
}

type waitWaiter struct {
	ch chan waitResult
}

func newWaitWaiter() *waitWaiter {
	return &waitWaiter{ch: make(chan waitResult, 1)}
}

func (w *waitWaiter) complete(available bool, err error) {
	w.ch <- waitResult{err: err, available: available}
}

func (w *waitWaiter) wait(ctx context.Context, timeout time.Duration, e expiry) (bool, error) {
	res, ok := blockOn(ctx, timeout, w.ch, e)
	if ok {
		return res.available, res.err
	}
	return false, ctx.Err()
}

// blockOn receives from ch, until timeout (if positive) or ctx is done. On
// expiry, if the request could not be removed, the in-flight completion is
// awaited unconditionally. The ok result is false only if the request
// expired, in which case the zero value is returned.
func blockOn[R any](ctx context.Context, timeout time.Duration, ch <-chan R, e expiry) (R, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case res := <-ch:
		return res, true
	case <-expired:
	case <-ctx.Done():
	}
	if e.remove() {
		var zero R
		return zero, false
	}
	return <-ch, true
}

// asyncReader completes a callback, on whichever goroutine delivers the
// result, or on the dispatcher, if the expiry timer wins.
type asyncReader[T any] struct {
	queue    *Queue[T]
	callback func(res result[T])
	timer    *timer.Timer
	done     atomic.Bool
}

func (r *asyncReader[T]) complete(res result[T]) {
	r.done.Store(true)
	if r.timer != nil {
		r.timer.Cancel()
	}
	r.callback(res)
}

func (r *asyncReader[T]) expire(any) {
	if r.queue.removeReader(r) {
		r.callback(result[T]{})
	}
}

// arm starts the expiry timer, after the reader has been registered.
func (r *asyncReader[T]) arm(timeout time.Duration) {
	if r.timer == nil {
		return
	}
	if err := r.timer.Set(timeout); err != nil {
		if r.queue.removeReader(r) {
			r.callback(result[T]{err: err})
		}
		return
	}
	if r.done.Load() {
		r.timer.Cancel()
	}
}

type asyncWaiter[T any] struct {
	queue    *Queue[T]
	callback func(available bool, err error)
	timer    *timer.Timer
	done     atomic.Bool
}

func (w *asyncWaiter[T]) complete(available bool, err error) {
	w.done.Store(true)
	if w.timer != nil {
		w.timer.Cancel()
	}
	w.callback(available, err)
}

func (w *asyncWaiter[T]) expire(any) {
	if w.queue.removeWaiter(w) {
		w.callback(false, nil)
	}
}

func (w *asyncWaiter[T]) arm(timeout time.Duration) {
	if w.timer == nil {
		return
	}
	if err := w.timer.Set(timeout); err != nil {
		if w.queue.removeWaiter(w) {
			w.callback(false, err)
		}
		return
	}
	if w.done.Load() {
		w.timer.Cancel()
	}
}

type readerExpiry[T any] struct {
	queue  *Queue[T]
	reader reader[T]
}

func (e readerExpiry[T]) remove() bool { return e.queue.removeReader(e.reader) }

type waiterExpiry[T any] struct {
	queue  *Queue[T]
	waiter waiter
}

func (e waiterExpiry[T]) remove() bool { return e.queue.removeWaiter(e.waiter) }
