// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iothread

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a buffer written by worker goroutines.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRuntime_endToEnd(t *testing.T) {
	var logs syncBuffer
	cfg, err := ParseConfig(exampleConfig)
	require.NoError(t, err)
	logger, err := cfg.Logger(&logs)
	require.NoError(t, err)

	r := New(WithLogger(logger), WithConfig(cfg))
	assert.Same(t, logger, r.Logger())
	assert.Equal(t, 64, r.Scheduler().Stats().Capacity)

	q := NewQueue[string](r)
	lock := r.NewLock()

	// a timer, dispatched onto the scheduler, enqueues under the lock
	tm := r.Timers().NewTimer(func(state any) {
		ctx, token := lock.Lock(context.Background())
		defer token.Release()
		_, nested := lock.Lock(ctx)
		nested.Release()
		if err := q.EnqueueAndDispatch(state.(string), nil, false); err != nil {
			t.Error(err)
		}
	}, `fired`, false)
	require.NoError(t, tm.Set(10*time.Millisecond))

	v, ok, err := q.Dequeue(5 * time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `fired`, v)

	collector := r.NewCollector(`app`)
	collector.AddQueue(`strings`, q)
	assert.Positive(t, testutil.CollectAndCount(collector))

	require.NoError(t, q.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	assert.ErrorIs(t, r.Close(ctx), ErrClosed)
	require.NoError(t, r.CheckInvariants())

	assert.Contains(t, logs.String(), `timer: waiter started`)
	assert.Contains(t, logs.String(), `inputqueue: closed`)
	assert.Contains(t, logs.String(), `iothread: runtime closed`)
}

func TestRuntime_schedule(t *testing.T) {
	r := New(WithSchedulerOptions(nil), WithTimerOptions(nil), nil)
	done := make(chan any, 1)
	r.Schedule(func(state any) { done <- state }, 5)
	assert.Equal(t, 5, <-done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))
	require.NoError(t, r.Close(ctx))
}

func TestRuntime_closeDropsTimers(t *testing.T) {
	r := New(WithLogger(NewLogger(&syncBuffer{}, logiface.LevelDisabled)))
	tm := r.Timers().NewTimer(func(any) { t.Error(`fired after close`) }, nil, true)
	require.NoError(t, tm.Set(20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	assert.False(t, tm.Scheduled())
	time.Sleep(50 * time.Millisecond)
}
