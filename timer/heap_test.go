// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkQueue(t *testing.T, q timerQueue) {
	t.Helper()
	for i, v := range q {
		require.Equal(t, i+1, v.index, `position %d`, i)
		if i > 0 {
			require.False(t, v.due.Before(q[(i-1)/2].due), `position %d violates heap order`, i)
		}
	}
}

func TestTimerQueue_randomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	base := time.Unix(1_700_000_000, 0)
	randomDue := func() time.Time {
		return base.Add(time.Duration(rng.IntN(10_000)) * time.Millisecond)
	}

	var q timerQueue
	timers := make([]*Timer, 200)
	for i := range timers {
		timers[i] = &Timer{}
	}

	for i := 0; i < 5000; i++ {
		v := timers[rng.IntN(len(timers))]
		switch op := rng.IntN(3); {
		case v.index == 0:
			q.insert(v, randomDue())
		case op == 0:
			q.remove(v)
			assert.Zero(t, v.index)
		default:
			q.update(v, randomDue())
		}
		if i%97 == 0 {
			checkQueue(t, q)
		}
	}
	checkQueue(t, q)

	var popped []*Timer
	popped = q.popDue(popped, base.Add(time.Hour))
	assert.Empty(t, q)
	for i := 1; i < len(popped); i++ {
		assert.False(t, popped[i].due.Before(popped[i-1].due))
		assert.Zero(t, popped[i].index)
	}
}

func TestTimerQueue_updateInPlace(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var q timerQueue
	a, b, c := &Timer{}, &Timer{}, &Timer{}
	q.insert(a, base.Add(10*time.Second))
	q.insert(b, base.Add(20*time.Second))
	q.insert(c, base.Add(30*time.Second))

	// leaf moving later stays put
	assert.True(t, q.update(b, base.Add(40*time.Second)))
	assert.Equal(t, 2, b.index)

	// root moving later than a child restructures
	assert.False(t, q.update(a, base.Add(time.Minute)))
	assert.Same(t, c, q.peek())
	checkQueue(t, q)

	// leaf moving earlier than the root restructures
	assert.False(t, q.update(a, base))
	assert.Same(t, a, q.peek())
	checkQueue(t, q)
}

func TestTimerQueue_popDue(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var q timerQueue
	for _, d := range []time.Duration{5, 1, 3, 2, 4} {
		q.insert(&Timer{}, base.Add(d*time.Second))
	}

	due := q.popDue(nil, base.Add(3*time.Second))
	require.Len(t, due, 3)
	for i, v := range due {
		assert.Equal(t, base.Add(time.Duration(i+1)*time.Second), v.due)
	}
	assert.Len(t, q, 2)
	checkQueue(t, q)

	q.clear()
	assert.Empty(t, q)
	assert.Nil(t, q.peek())
}

func TestTimerQueue_popDueWithinSkew(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var q timerQueue
	a := &Timer{skew: 100 * time.Millisecond}
	b := &Timer{skew: 100 * time.Millisecond}
	c := &Timer{skew: 100 * time.Millisecond}
	q.insert(a, base.Add(50*time.Millisecond))
	q.insert(b, base.Add(120*time.Millisecond))
	q.insert(c, base.Add(200*time.Millisecond))

	due := q.popDue(nil, base.Add(50*time.Millisecond))
	require.Equal(t, []*Timer{a, b}, due)
	assert.Same(t, c, q.peek())
	checkQueue(t, q)

	// the earliest timer gates the walk
	var r timerQueue
	strict := &Timer{}
	loose := &Timer{skew: time.Hour}
	r.insert(strict, base.Add(time.Second))
	r.insert(loose, base.Add(2*time.Second))
	assert.Empty(t, r.popDue(nil, base))
	assert.Len(t, r, 2)
}
