// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package asynclock provides a reentrant mutual exclusion lock, usable from
// both blocking and asynchronous (future based) call paths.
//
// Reentrancy is tracked per logical call chain, rather than per goroutine:
// acquiring the lock returns a derived context, which marks the chain as the
// holder. Acquiring again using that context (or any context derived from
// it), on any goroutine, returns a no-op token immediately, until the
// original token is released.
package asynclock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-iothread/future"
	"golang.org/x/sync/semaphore"
)

// Lock is a reentrant lock, with a single permit. The zero value is not
// usable, see New.
type Lock struct {
	sem *semaphore.Weighted
}

// Token releases an acquisition of a Lock. Tokens returned by reentrant
// acquisitions are no-ops, which never touch the permit.
type Token struct {
	holder    *holder
	lock      *Lock
	released  atomic.Bool
	reentrant bool
}

// Held is the value an acquisition future resolves to.
type Held struct {
	// Context marks the call chain as the holder, and must be used for any
	// nested acquisitions.
	Context context.Context
	Token   *Token
}

// holder is the reentrancy marker, stored in the context.
type holder struct {
	released atomic.Bool
}

// holderKey is the context key, scoping markers to a single Lock.
type holderKey struct {
	lock *Lock
}

// New initializes a new Lock.
func New() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Held reports whether ctx belongs to the call chain currently holding the
// lock.
func (l *Lock) Held(ctx context.Context) bool {
	return l.holderOf(ctx) != nil
}

// Lock acquires the lock, blocking until it is available. Cancellation of
// ctx does not abort the wait. The returned context must be used for nested
// acquisitions.
func (l *Lock) Lock(ctx context.Context) (context.Context, *Token) {
	ctx, token, err := l.acquire(ctx, context.WithoutCancel(ctx))
	if err != nil {
		// unreachable: the wait context is never done
		panic(err)
	}
	return ctx, token
}

// Acquire acquires the lock, blocking until it is available, or ctx is done,
// in which case ctx.Err() is returned.
func (l *Lock) Acquire(ctx context.Context) (context.Context, *Token, error) {
	return l.acquire(ctx, ctx)
}

// AcquireTimeout behaves like Lock.Acquire, but gives up after timeout,
// returning false if the lock was not acquired. A non-positive timeout never
// waits.
func (l *Lock) AcquireTimeout(ctx context.Context, timeout time.Duration) (context.Context, *Token, bool) {
	if timeout <= 0 {
		return l.tryAcquire(ctx)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	held, token, err := l.acquire(ctx, waitCtx)
	if err != nil {
		return ctx, nil, false
	}
	return held, token, true
}

// AcquireFuture acquires the lock asynchronously. The future is resolved
// immediately, if the lock is held by the call chain, or is available.
// Otherwise, the wait continues on a new goroutine, and the future is
// rejected if ctx is done first.
func (l *Lock) AcquireFuture(ctx context.Context) *future.Future[Held] {
	if held, token, ok := l.tryAcquire(ctx); ok {
		return future.ResolvedWith(Held{Context: held, Token: token})
	}
	f := future.New[Held]()
	go func() {
		held, token, err := l.Acquire(ctx)
		if err != nil {
			f.Reject(err)
			return
		}
		if !f.Resolve(Held{Context: held, Token: token}) {
			token.Release()
		}
	}()
	return f
}

// Do calls fn while holding the lock, releasing it on every exit path,
// including panics. The context passed to fn marks the call chain as the
// holder.
func (l *Lock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, token, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer token.Release()
	return fn(ctx)
}

// Release releases the acquisition, returning false if it was already
// released. Reentrant tokens only mark themselves released.
func (t *Token) Release() bool {
	if !t.released.CompareAndSwap(false, true) {
		return false
	}
	if !t.reentrant {
		t.holder.released.Store(true)
		t.lock.sem.Release(1)
	}
	return true
}

// Reentrant reports whether the token was returned by a nested acquisition.
func (t *Token) Reentrant() bool {
	return t.reentrant
}

func (l *Lock) acquire(ctx, waitCtx context.Context) (context.Context, *Token, error) {
	if l.holderOf(ctx) != nil {
		return ctx, &Token{lock: l, reentrant: true}, nil
	}
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		return ctx, nil, err
	}
	held, token := l.grant(ctx)
	return held, token, nil
}

func (l *Lock) tryAcquire(ctx context.Context) (context.Context, *Token, bool) {
	if l.holderOf(ctx) != nil {
		return ctx, &Token{lock: l, reentrant: true}, true
	}
	if !l.sem.TryAcquire(1) {
		return ctx, nil, false
	}
	held, token := l.grant(ctx)
	return held, token, true
}

// grant marks ctx as the holder, after the permit has been acquired.
func (l *Lock) grant(ctx context.Context) (context.Context, *Token) {
	h := new(holder)
	return context.WithValue(ctx, holderKey{lock: l}, h), &Token{holder: h, lock: l}
}

func (l *Lock) holderOf(ctx context.Context) *holder {
	if h, _ := ctx.Value(holderKey{lock: l}).(*holder); h != nil && !h.released.Load() {
		return h
	}
	return nil
}
