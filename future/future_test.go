// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_resolve(t *testing.T) {
	f := New[int]()
	assert.Equal(t, Pending, f.State())
	_, err := f.Result()
	assert.ErrorIs(t, err, ErrPending)

	require.True(t, f.Resolve(42))
	require.False(t, f.Resolve(43))
	require.False(t, f.Reject(errors.New(`late`)))

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, Resolved, f.State())

	select {
	case <-f.Done():
	default:
		t.Fatal(`done not closed`)
	}
}

func TestFuture_reject(t *testing.T) {
	sentinel := errors.New(`sentinel`)
	f := RejectedWith[string](sentinel)
	assert.Equal(t, Rejected, f.State())
	_, err := f.Result()
	assert.ErrorIs(t, err, sentinel)
}

func TestFuture_rejectNil(t *testing.T) {
	f := New[int]()
	require.True(t, f.Reject(nil))
	_, err := f.Result()
	assert.Error(t, err)
}

func TestFuture_await(t *testing.T) {
	f := New[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Resolve(`ok`)
	}()
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `ok`, v)
}

func TestFuture_awaitContext(t *testing.T) {
	f := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Pending, f.State())
}

func TestFuture_onSettled(t *testing.T) {
	f := New[int]()

	var (
		mu  sync.Mutex
		got []int
	)
	record := func(v int, err error) {
		assert.NoError(t, err)
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	}

	f.OnSettled(record)
	f.OnSettled(record)
	f.Resolve(5)
	// already settled: runs inline
	f.OnSettled(record)

	assert.Equal(t, []int{5, 5, 5}, got)
}

func TestFuture_callbackMayInspect(t *testing.T) {
	f := New[int]()
	var state State
	f.OnSettled(func(int, error) { state = f.State() })
	f.Resolve(1)
	assert.Equal(t, Resolved, state)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, `Pending`, Pending.String())
	assert.Equal(t, `Resolved`, Resolved.String())
	assert.Equal(t, `Rejected`, Rejected.String())
	assert.Equal(t, `Unknown`, State(99).String())
}
