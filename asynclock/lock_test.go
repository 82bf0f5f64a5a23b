// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynclock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-iothread/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLock_reentrantAcquireDoesNotBlock(t *testing.T) {
	l := New()

	ctx, outer := l.Lock(context.Background())
	require.False(t, outer.Reentrant())
	assert.True(t, l.Held(ctx))
	assert.False(t, l.Held(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// same logical chain, different goroutine
		nestedCtx, inner := l.Lock(ctx)
		assert.True(t, inner.Reentrant())
		assert.Equal(t, ctx, nestedCtx)
		assert.True(t, inner.Release())
		assert.False(t, inner.Release())
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal(`reentrant acquire blocked`)
	}
	assert.True(t, l.Held(ctx), `nested release does not release the chain`)

	// an independent chain blocks until the first releases
	acquired := make(chan *Token, 1)
	go func() {
		_, token := l.Lock(context.Background())
		acquired <- token
	}()
	select {
	case <-acquired:
		t.Fatal(`independent chain acquired a held lock`)
	case <-time.After(50 * time.Millisecond):
	}

	assert.True(t, outer.Release())
	assert.False(t, outer.Release())
	assert.False(t, l.Held(ctx))

	select {
	case token := <-acquired:
		assert.True(t, token.Release())
	case <-time.After(5 * time.Second):
		t.Fatal(`independent chain never acquired`)
	}
}

func TestLock_releasedMarkerIsNotReentrant(t *testing.T) {
	l := New()
	ctx, token := l.Lock(context.Background())
	require.True(t, token.Release())

	// a stale holder context acquires normally
	ctx2, token2 := l.Lock(ctx)
	assert.False(t, token2.Reentrant())
	assert.True(t, l.Held(ctx2))
	assert.False(t, l.Held(ctx))
	assert.True(t, token2.Release())
}

func TestLock_acquireCanceled(t *testing.T) {
	l := New()
	_, token := l.Lock(context.Background())
	defer token.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, got, err := l.Acquire(ctx)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, context.Canceled)

	_, got, ok := l.AcquireTimeout(context.Background(), 20*time.Millisecond)
	assert.Nil(t, got)
	assert.False(t, ok)
}

func TestLock_acquireTimeoutSucceeds(t *testing.T) {
	l := New()
	ctx, token, ok := l.AcquireTimeout(context.Background(), time.Second)
	require.True(t, ok)
	// the returned context outlives the wait timeout
	assert.NoError(t, ctx.Err())
	assert.True(t, l.Held(ctx))
	assert.True(t, token.Release())
}

func TestLock_acquireTimeoutZeroPolls(t *testing.T) {
	l := New()

	ctx, token, ok := l.AcquireTimeout(context.Background(), 0)
	require.True(t, ok, `free lock`)
	require.NotNil(t, token)
	assert.False(t, token.Reentrant())
	assert.True(t, l.Held(ctx))

	// same chain, held
	_, nested, ok := l.AcquireTimeout(ctx, 0)
	require.True(t, ok)
	assert.True(t, nested.Reentrant())

	// another chain, held
	start := time.Now()
	_, other, ok := l.AcquireTimeout(context.Background(), -time.Second)
	assert.False(t, ok)
	assert.Nil(t, other)
	assert.Less(t, time.Since(start), time.Second)

	assert.True(t, nested.Release())
	assert.True(t, token.Release())
	_, token, ok = l.AcquireTimeout(context.Background(), 0)
	require.True(t, ok)
	assert.True(t, token.Release())
}

func TestLock_acquireFuture(t *testing.T) {
	l := New()

	f := l.AcquireFuture(context.Background())
	require.Equal(t, future.Resolved, f.State())
	held, err := f.Result()
	require.NoError(t, err)

	nested := l.AcquireFuture(held.Context)
	require.Equal(t, future.Resolved, nested.State())
	inner, _ := nested.Result()
	assert.True(t, inner.Token.Reentrant())

	waiting := l.AcquireFuture(context.Background())
	assert.Equal(t, future.Pending, waiting.State())

	held.Token.Release()
	next, err := waiting.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, l.Held(next.Context))
	assert.True(t, next.Token.Release())
}

func TestLock_acquireFutureCanceled(t *testing.T) {
	l := New()
	_, token := l.Lock(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	f := l.AcquireFuture(ctx)
	cancel()
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)

	token.Release()
	_, again := l.Lock(context.Background())
	again.Release()
}

func TestLock_do(t *testing.T) {
	l := New()
	sentinel := errors.New(`sentinel`)

	err := l.Do(context.Background(), func(ctx context.Context) error {
		assert.True(t, l.Held(ctx))
		return l.Do(ctx, func(ctx context.Context) error {
			return sentinel
		})
	})
	assert.ErrorIs(t, err, sentinel)

	assert.Panics(t, func() {
		_ = l.Do(context.Background(), func(context.Context) error { panic(`boom`) })
	})

	_, token, ok := l.AcquireTimeout(context.Background(), time.Second)
	require.True(t, ok, `released on every exit path`)
	token.Release()
}

func TestLock_mutualExclusion(t *testing.T) {
	l := New()

	var (
		holders atomic.Int32
		total   int
	)
	critical := func(ctx context.Context) {
		if n := holders.Add(1); n != 1 {
			t.Errorf(`%d concurrent holders`, n)
		}
		// nested acquisition within the chain
		_, nested := l.Lock(ctx)
		total++
		nested.Release()
		holders.Add(-1)
	}

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				switch (i + j) % 3 {
				case 0:
					ctx, token := l.Lock(context.Background())
					critical(ctx)
					token.Release()
				case 1:
					held, err := l.AcquireFuture(context.Background()).Await(context.Background())
					if err != nil {
						return err
					}
					critical(held.Context)
					held.Token.Release()
				default:
					if err := l.Do(context.Background(), func(ctx context.Context) error {
						critical(ctx)
						return nil
					}); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 16*50, total)
}
