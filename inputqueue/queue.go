// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package inputqueue

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-iothread/future"
	"github.com/joeycumines/go-iothread/timer"
	"github.com/joeycumines/logiface"
)

// Infinite may be used as a timeout, to wait without limit. Any negative
// timeout is treated the same way.
const Infinite time.Duration = -1

// Dispatcher runs deferred notifications. It is implemented by
// *scheduler.Scheduler.
type Dispatcher interface {
	Schedule(callback func(state any), state any)
}

// Dequeued is the value a future returned by Queue.DequeueFuture resolves
// to. OK is false if the request timed out. EOF is true if the queue was
// shut down and drained, or closed while waiting, in which case there is no
// Value.
type Dequeued[T any] struct {
	Value T
	OK    bool
	EOF   bool
}

// Queue is a many-producer, many-consumer FIFO, consumed by blocking,
// callback, or future based readers.
//
// Dequeue results follow a single convention:
//
//   - (value, true, nil): an item was dequeued
//   - (zero, true, err): an error enqueued by a producer was dequeued
//   - (zero, true, io.EOF): end-of-stream, i.e. the queue was shut down and
//     drained, or closed while waiting, see also Queue.Shutdown
//   - (zero, false, nil): the request timed out
//   - (zero, false, ctx.Err()): the context was canceled
//   - (zero, false, ErrClosed): the queue was already closed
//
// Futures resolve, rather than reject, at end-of-stream, see
// Queue.DequeueFuture.
//
// Instances must be initialized using New.
type Queue[T any] struct {
	dispatcher Dispatcher
	timers     *timer.Manager
	logger     *logiface.Logger[logiface.Event]
	dispose    func(value T)
	pendingErr func() error
	readers    []reader[T]
	waiters    []waiter
	items      itemBuffer[T]
	mu         sync.Mutex
	state      State
}

// New initializes a new Queue. Deferred notifications are run using
// dispatcher, and timers is used to expire asynchronous requests. A panic
// will occur if either is nil.
func New[T any](dispatcher Dispatcher, timers *timer.Manager, opts ...Option[T]) *Queue[T] {
	if dispatcher == nil {
		panic(`inputqueue: nil dispatcher`)
	}
	if timers == nil {
		panic(`inputqueue: nil timer manager`)
	}
	cfg := resolveOptions(opts)
	return &Queue[T]{
		dispatcher: dispatcher,
		timers:     timers,
		logger:     cfg.logger,
		dispose:    cfg.disposeItem,
	}
}

// State returns the current [State].
func (q *Queue[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of buffered items, including pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.total
}

// Pending returns the number of buffered items that are not yet visible to
// readers, see Queue.Dispatch.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.pending
}

// Readers returns the number of outstanding dequeue requests.
func (q *Queue[T]) Readers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.readers)
}

// Waiters returns the number of outstanding availability requests.
func (q *Queue[T]) Waiters() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// Enqueue adds value to the queue, without handing it to a reader. If
// dispatch is true, the item was buffered as pending, because a reader or
// waiter is outstanding, and the caller must call Queue.Dispatch once it is
// appropriate to do so. The optional onDequeued is called once the item has
// been consumed, or disposed.
//
// If the queue has been shut down or closed, the value is disposed, and
// [ErrShutdown] or [ErrClosed] is returned.
func (q *Queue[T]) Enqueue(value T, onDequeued func()) (dispatch bool, err error) {
	return q.enqueueWithoutDispatch(item[T]{value: value, onDequeued: onDequeued})
}

// EnqueueError behaves like Queue.Enqueue, but the item is an error, which
// will be returned to exactly one reader. A panic will occur if err is nil.
func (q *Queue[T]) EnqueueError(err error, onDequeued func()) (dispatch bool, _ error) {
	if err == nil {
		panic(`inputqueue: nil error`)
	}
	return q.enqueueWithoutDispatch(item[T]{err: err, onDequeued: onDequeued})
}

// EnqueueAndDispatch adds value to the queue, handing it to the oldest
// outstanding reader, if any.
//
// If canDispatchOnThisThread is true, the reader (and any waiters) are
// completed on the calling goroutine, meaning callback readers run before
// this method returns, unless earlier items are still pending. Otherwise,
// the item is buffered as pending, and completion is deferred onto the
// dispatcher, which bounds the depth of callback reentrancy, at the cost of
// latency.
func (q *Queue[T]) EnqueueAndDispatch(value T, onDequeued func(), canDispatchOnThisThread bool) error {
	return q.enqueueAndDispatch(item[T]{value: value, onDequeued: onDequeued}, canDispatchOnThisThread)
}

// EnqueueErrorAndDispatch behaves like Queue.EnqueueAndDispatch, but the item
// is an error. A panic will occur if err is nil.
func (q *Queue[T]) EnqueueErrorAndDispatch(err error, onDequeued func(), canDispatchOnThisThread bool) error {
	if err == nil {
		panic(`inputqueue: nil error`)
	}
	return q.enqueueAndDispatch(item[T]{err: err, onDequeued: onDequeued}, canDispatchOnThisThread)
}

// Dispatch makes the oldest pending item available, handing it to the
// oldest outstanding reader, if any. It is a no-op if there are no pending
// items, and returns [ErrClosed] if the queue is closed.
func (q *Queue[T]) Dispatch() error {
	var (
		r           reader[T]
		it          item[T]
		waiters     []waiter
		outstanding []reader[T]
		ended       []waiter
		pendingErr  func() error
	)

	q.mu.Lock()
	if q.state == Closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if !q.items.makePendingAvailable() {
		q.mu.Unlock()
		return nil
	}
	if len(q.readers) != 0 {
		it, _ = q.items.dequeueAvailable()
		r = q.popReader()
	}
	if q.items.hasAvailable() {
		waiters = q.takeWaiters()
	}
	if q.state == Shutdown && !q.items.hasAny() {
		outstanding = q.takeReaders()
		ended = q.takeWaiters()
		pendingErr = q.pendingErr
	}
	q.mu.Unlock()

	if len(outstanding) != 0 || len(ended) != 0 {
		q.dispatcher.Schedule(func(any) {
			completeEndOfStream(outstanding, ended, pendingErr)
		}, nil)
	}
	q.completeWaiters(waiters, false)
	if r != nil {
		invoke(it.onDequeued)
		r.complete(it.result())
	}

	return nil
}

// Dequeue removes the oldest available item, waiting up to timeout for one
// to arrive, see [Queue] for the result convention. A zero timeout never
// waits, and a negative timeout (e.g. [Infinite]) waits indefinitely.
//
// If the wait expires concurrently with an item being handed to this
// reader, the item is returned.
func (q *Queue[T]) Dequeue(timeout time.Duration) (value T, ok bool, err error) {
	return q.dequeue(context.Background(), timeout)
}

// DequeueContext behaves like Queue.Dequeue with an infinite timeout, except
// that the wait is aborted if ctx is done.
func (q *Queue[T]) DequeueContext(ctx context.Context) (value T, ok bool, err error) {
	return q.dequeue(ctx, Infinite)
}

// DequeueAsync behaves like Queue.Dequeue, but calls callback with the
// result instead of blocking. The callback may be called on the calling
// goroutine, a producer's goroutine, or the dispatcher.
func (q *Queue[T]) DequeueAsync(timeout time.Duration, callback func(value T, ok bool, err error)) {
	if callback == nil {
		panic(`inputqueue: nil callback`)
	}
	q.dequeueAsync(timeout, func(res result[T]) {
		callback(res.value, res.ok, res.err)
	})
}

// DequeueFuture behaves like Queue.DequeueAsync, but returns a future.
// End-of-stream resolves the future, with Dequeued.EOF set. The future is
// rejected if the result carries an error, i.e. one enqueued by a producer,
// the error returned by the function passed to Queue.Shutdown, or
// [ErrClosed].
func (q *Queue[T]) DequeueFuture(timeout time.Duration) *future.Future[Dequeued[T]] {
	f := future.New[Dequeued[T]]()
	q.dequeueAsync(timeout, func(res result[T]) {
		switch {
		case res.eos:
			f.Resolve(Dequeued[T]{OK: true, EOF: true})
		case res.err != nil:
			f.Reject(res.err)
		default:
			f.Resolve(Dequeued[T]{Value: res.value, OK: res.ok})
		}
	})
	return f
}

// WaitForItem waits up to timeout for an item to become available, without
// consuming it. It returns (true, nil) if one is available, (false, nil) on
// timeout, (false, io.EOF) (or the shutdown error) at end-of-stream, and
// (false, ErrClosed) if the queue was already closed.
func (q *Queue[T]) WaitForItem(timeout time.Duration) (available bool, err error) {
	return q.waitForItem(context.Background(), timeout)
}

// WaitForItemContext behaves like Queue.WaitForItem with an infinite
// timeout, except that the wait is aborted if ctx is done.
func (q *Queue[T]) WaitForItemContext(ctx context.Context) (available bool, err error) {
	return q.waitForItem(ctx, Infinite)
}

// WaitForItemAsync behaves like Queue.WaitForItem, but calls callback with
// the result. Waiters are completed together, by default on the dispatcher.
func (q *Queue[T]) WaitForItemAsync(timeout time.Duration, callback func(available bool, err error)) {
	if callback == nil {
		panic(`inputqueue: nil callback`)
	}

	q.mu.Lock()
	if a := q.checkAvailable(timeout); a.done {
		q.mu.Unlock()
		callback(a.result())
		return
	}
	w := &asyncWaiter[T]{queue: q, callback: callback}
	if timeout > 0 {
		w.timer = q.timers.NewTimer(w.expire, nil, true)
	}
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	w.arm(timeout)
}

// WaitForItemFuture behaves like Queue.WaitForItemAsync, but returns a
// future, which resolves false on timeout or end-of-stream (a subsequent
// dequeue distinguishes the two). It is rejected if the result carries an
// error, i.e. the error returned by the function passed to Queue.Shutdown,
// or [ErrClosed].
func (q *Queue[T]) WaitForItemFuture(timeout time.Duration) *future.Future[bool] {
	f := future.New[bool]()
	q.WaitForItemAsync(timeout, func(available bool, err error) {
		switch {
		case err == io.EOF:
			f.Resolve(false)
		case err != nil:
			f.Reject(err)
		default:
			f.Resolve(available)
		}
	})
	return f
}

// Shutdown stops the queue accepting items. Buffered items continue to drain
// to readers, after which outstanding and future readers see end-of-stream:
// io.EOF, or, if pendingErr is non-nil and returns a non-nil error, that
// error. The pendingErr function is called once per reader. Shutdown is a
// no-op if the queue is already shut down, and returns [ErrClosed] if it is
// closed.
func (q *Queue[T]) Shutdown(pendingErr func() error) error {
	var (
		readers []reader[T]
		waiters []waiter
	)

	q.mu.Lock()
	switch q.state {
	case Closed:
		q.mu.Unlock()
		return ErrClosed
	case Shutdown:
		q.mu.Unlock()
		return nil
	}
	q.state = Shutdown
	q.pendingErr = pendingErr
	if !q.items.hasAny() {
		readers = q.takeReaders()
		waiters = q.takeWaiters()
	}
	buffered := q.items.total
	q.mu.Unlock()

	q.logger.Debug().
		Int(`buffered`, buffered).
		Int(`readers`, len(readers)).
		Log(`inputqueue: shutdown`)

	completeEndOfStream(readers, waiters, pendingErr)

	return nil
}

// Close transitions the queue to [Closed], completing outstanding readers
// and waiters with end-of-stream, and disposing buffered items, see
// WithDisposeItem. Subsequent calls return [ErrClosed].
func (q *Queue[T]) Close() error {
	var items []item[T]

	q.mu.Lock()
	if q.state == Closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.state = Closed
	readers := q.takeReaders()
	waiters := q.takeWaiters()
	for {
		it, ok := q.items.dequeueAny()
		if !ok {
			break
		}
		items = append(items, it)
	}
	q.mu.Unlock()

	q.logger.Debug().
		Int(`disposed`, len(items)).
		Int(`readers`, len(readers)).
		Int(`waiters`, len(waiters)).
		Log(`inputqueue: closed`)

	completeEndOfStream(readers, waiters, nil)
	for _, it := range items {
		q.disposeItem(it)
	}

	return nil
}

// CheckInvariants validates the queue's accounting, returning an error
// describing the first violation found. It is a debug hook, intended for
// tests.
func (q *Queue[T]) CheckInvariants() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.pending < 0 || q.items.pending > q.items.total {
		return fmt.Errorf(`inputqueue: pending %d outside [0, %d]`, q.items.pending, q.items.total)
	}
	if len(q.readers) != 0 && q.items.hasAvailable() {
		return fmt.Errorf(`inputqueue: %d readers waiting with %d items available`, len(q.readers), q.items.total-q.items.pending)
	}
	if q.state == Closed && (q.items.hasAny() || len(q.readers) != 0 || len(q.waiters) != 0) {
		return fmt.Errorf(`inputqueue: closed queue retains items or requests`)
	}
	return nil
}

func (q *Queue[T]) enqueueWithoutDispatch(it item[T]) (bool, error) {
	q.mu.Lock()
	switch q.state {
	case Open:
		if len(q.readers) == 0 && len(q.waiters) == 0 {
			q.items.enqueueAvailable(it)
			q.mu.Unlock()
			return false, nil
		}
		q.items.enqueuePending(it)
		q.mu.Unlock()
		return true, nil
	default:
		err := q.rejectErr()
		q.mu.Unlock()
		q.disposeItem(it)
		return false, err
	}
}

func (q *Queue[T]) enqueueAndDispatch(it item[T], canDispatchOnThisThread bool) error {
	var (
		r             reader[T]
		waiters       []waiter
		dispatchLater bool
	)

	q.mu.Lock()
	if q.state != Open {
		err := q.rejectErr()
		q.mu.Unlock()
		q.disposeItem(it)
		return err
	}
	switch {
	case len(q.readers) == 0:
		q.items.enqueueAvailable(it)
		waiters = q.takeWaiters()
	case canDispatchOnThisThread && !q.items.hasAny():
		// anything buffered is pending, and must be delivered first
		r = q.popReader()
	default:
		q.items.enqueuePending(it)
		dispatchLater = true
	}
	q.mu.Unlock()

	q.completeWaiters(waiters, canDispatchOnThisThread)
	if r != nil {
		invoke(it.onDequeued)
		r.complete(it.result())
	}
	if dispatchLater {
		q.dispatcher.Schedule(dispatchQueue[T], q)
	}

	return nil
}

// dispatchQueue is scheduled once per pending item. ErrClosed is expected,
// Close having disposed the item.
func dispatchQueue[T any](state any) { _ = state.(*Queue[T]).Dispatch() }

func (q *Queue[T]) dequeue(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T

	q.mu.Lock()

	if q.state == Closed {
		q.mu.Unlock()
		return zero, false, ErrClosed
	}

	if it, ok := q.items.dequeueAvailable(); ok {
		q.mu.Unlock()
		invoke(it.onDequeued)
		return it.value, true, it.err
	}

	if q.state == Shutdown && !q.items.hasAny() {
		pendingErr := q.pendingErr
		q.mu.Unlock()
		return zero, true, endOfStream(pendingErr)
	}

	if timeout == 0 {
		q.mu.Unlock()
		return zero, false, nil
	}

	r := newWaitReader[T]()
	q.readers = append(q.readers, r)

	q.mu.Unlock()

	res := r.wait(ctx, timeout, readerExpiry[T]{queue: q, reader: r})
	return res.value, res.ok, res.err
}

func (q *Queue[T]) dequeueAsync(timeout time.Duration, callback func(res result[T])) {
	q.mu.Lock()

	if q.state == Closed {
		q.mu.Unlock()
		callback(result[T]{err: ErrClosed})
		return
	}

	if it, ok := q.items.dequeueAvailable(); ok {
		q.mu.Unlock()
		invoke(it.onDequeued)
		callback(it.result())
		return
	}

	if q.state == Shutdown && !q.items.hasAny() {
		pendingErr := q.pendingErr
		q.mu.Unlock()
		callback(endResult[T](pendingErr))
		return
	}

	if timeout == 0 {
		q.mu.Unlock()
		callback(result[T]{})
		return
	}

	r := &asyncReader[T]{queue: q, callback: callback}
	if timeout > 0 {
		r.timer = q.timers.NewTimer(r.expire, nil, true)
	}
	q.readers = append(q.readers, r)

	q.mu.Unlock()

	r.arm(timeout)
}

func (q *Queue[T]) waitForItem(ctx context.Context, timeout time.Duration) (bool, error) {
	q.mu.Lock()
	if a := q.checkAvailable(timeout); a.done {
		q.mu.Unlock()
		return a.result()
	}
	w := newWaitWaiter()
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	return w.wait(ctx, timeout, waiterExpiry[T]{queue: q, waiter: w})
}

// availability is the outcome of a waiter request that need not wait.
type availability struct {
	err        error
	pendingErr func() error
	available  bool
	eos        bool
	done       bool
}

func (a availability) result() (bool, error) {
	if a.eos {
		return false, endOfStream(a.pendingErr)
	}
	return a.available, a.err
}

// checkAvailable resolves a waiter request, if it would complete immediately.
// CALLER MUST HOLD q.mu.
func (q *Queue[T]) checkAvailable(timeout time.Duration) availability {
	switch {
	case q.state == Closed:
		return availability{err: ErrClosed, done: true}
	case q.items.hasAvailable():
		return availability{available: true, done: true}
	case q.state == Shutdown && !q.items.hasAny():
		return availability{pendingErr: q.pendingErr, eos: true, done: true}
	case timeout == 0:
		return availability{done: true}
	default:
		return availability{}
	}
}

func (q *Queue[T]) removeReader(r reader[T]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := slices.Index(q.readers, r); i >= 0 {
		q.readers = slices.Delete(q.readers, i, i+1)
		return true
	}
	return false
}

func (q *Queue[T]) removeWaiter(w waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := slices.Index(q.waiters, w); i >= 0 {
		q.waiters = slices.Delete(q.waiters, i, i+1)
		return true
	}
	return false
}

// CALLER MUST HOLD q.mu.
func (q *Queue[T]) popReader() reader[T] {
	r := q.readers[0]
	q.readers[0] = nil
	q.readers = q.readers[1:]
	if len(q.readers) == 0 {
		q.readers = nil
	}
	return r
}

// CALLER MUST HOLD q.mu.
func (q *Queue[T]) takeReaders() []reader[T] {
	readers := q.readers
	q.readers = nil
	return readers
}

// CALLER MUST HOLD q.mu.
func (q *Queue[T]) takeWaiters() []waiter {
	waiters := q.waiters
	q.waiters = nil
	return waiters
}

// CALLER MUST HOLD q.mu.
func (q *Queue[T]) rejectErr() error {
	if q.state == Shutdown {
		return ErrShutdown
	}
	return ErrClosed
}

// completeWaiters notifies waiters that an item is available, deferring
// onto the dispatcher unless onThisThread.
func (q *Queue[T]) completeWaiters(waiters []waiter, onThisThread bool) {
	if len(waiters) == 0 {
		return
	}
	if onThisThread {
		completeAvailable(waiters)
		return
	}
	q.dispatcher.Schedule(func(any) { completeAvailable(waiters) }, nil)
}

func (q *Queue[T]) disposeItem(it item[T]) {
	if it.err == nil {
		q.dispose(it.value)
	}
	invoke(it.onDequeued)
}

func completeAvailable(waiters []waiter) {
	for _, w := range waiters {
		w.complete(true, nil)
	}
}

func completeEndOfStream[T any](readers []reader[T], waiters []waiter, pendingErr func() error) {
	for _, r := range readers {
		r.complete(endResult[T](pendingErr))
	}
	for _, w := range waiters {
		w.complete(false, endOfStream(pendingErr))
	}
}

// endResult is the reader result at end-of-stream, which is a fault only if
// pendingErr supplies one.
func endResult[T any](pendingErr func() error) result[T] {
	err := endOfStream(pendingErr)
	return result[T]{err: err, ok: true, eos: err == io.EOF}
}

func endOfStream(pendingErr func() error) error {
	if pendingErr != nil {
		if err := pendingErr(); err != nil {
			return err
		}
	}
	return io.EOF
}

func invoke(fn func()) {
	if fn != nil {
		fn()
	}
}
