// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-iothread/inputqueue"
	"github.com/joeycumines/go-iothread/scheduler"
	"github.com/joeycumines/go-iothread/timer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Queue = (*inputqueue.Queue[int])(nil)

func TestCollector(t *testing.T) {
	s := scheduler.New(scheduler.WithInitialCapacity(8))
	m := timer.NewManager(s)
	defer m.Close()
	q := inputqueue.New[int](s, m)
	defer q.Close()

	for i := 0; i < 3; i++ {
		s.Go(func() {})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))

	v := m.NewTimer(func(any) {}, nil, true)
	require.NoError(t, v.Set(time.Hour))

	require.NoError(t, q.EnqueueAndDispatch(1, nil, false))
	dispatch, err := q.Enqueue(2, nil)
	require.NoError(t, err)
	require.False(t, dispatch)

	c := NewCollector(`iothread`, s, m)
	c.AddQueue(`inbox`, q)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP iothread_scheduler_executed_total Number of work items executed, including those that panicked.
# TYPE iothread_scheduler_executed_total counter
iothread_scheduler_executed_total 3
# HELP iothread_scheduler_capacity Number of slots in the current ring.
# TYPE iothread_scheduler_capacity gauge
iothread_scheduler_capacity 8
# HELP iothread_timer_scheduled Number of scheduled timers.
# TYPE iothread_timer_scheduled gauge
iothread_timer_scheduled{group="stable"} 0
iothread_timer_scheduled{group="volatile"} 1
# HELP iothread_timer_waiter_running Whether the waiter goroutine is running.
# TYPE iothread_timer_waiter_running gauge
iothread_timer_waiter_running 1
# HELP iothread_queue_items Number of buffered items, including pending items.
# TYPE iothread_queue_items gauge
iothread_queue_items{queue="inbox"} 2
`),
		`iothread_scheduler_executed_total`,
		`iothread_scheduler_capacity`,
		`iothread_timer_scheduled`,
		`iothread_timer_waiter_running`,
		`iothread_queue_items`,
	))

	c.RemoveQueue(`inbox`)
	count, err := testutil.GatherAndCount(reg, `iothread_queue_items`)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCollector_nilComponents(t *testing.T) {
	c := NewCollector(``, nil, nil)
	assert.Zero(t, testutil.CollectAndCount(c))

	s := scheduler.New()
	c = NewCollector(``, s, nil)
	assert.Equal(t, 9, testutil.CollectAndCount(c))
}
