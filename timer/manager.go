// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// Dispatcher runs elapsed timer callbacks. It is implemented by
// *scheduler.Scheduler.
type Dispatcher interface {
	Schedule(callback func(state any), state any)
}

// DispatcherFunc adapts a function to a [Dispatcher].
type DispatcherFunc func(callback func(state any), state any)

// Schedule implements [Dispatcher].
func (f DispatcherFunc) Schedule(callback func(state any), state any) {
	f(callback, state)
}

const (
	stableGroup = iota
	volatileGroup
	groupCount
)

// timerGroup pairs a queue with the deadline the waiter uses to wake for it.
type timerGroup struct {
	queue    timerQueue
	deadline *time.Timer
	// armed is the due time the deadline is programmed for, or zero if the
	// deadline is stopped (or has elapsed, and been observed)
	armed time.Time
}

// Manager owns the timer groups, and the waiter goroutine servicing them.
//
// Instances must be initialized using NewManager, and should be shared,
// e.g. one per process, or one per test.
type Manager struct {
	idleSince  time.Time
	dispatcher Dispatcher
	logger     *logiface.Logger[logiface.Event]
	retire     *time.Timer
	done       chan struct{}
	groups     [groupCount]timerGroup
	stats      Stats
	wg         sync.WaitGroup
	grace      time.Duration
	skew       time.Duration
	mu         sync.Mutex
	running    bool
	closed     bool
}

// Stats is a snapshot of manager state and counters.
type Stats struct {
	// Stable is the number of scheduled stable timers.
	Stable int
	// Volatile is the number of scheduled volatile timers.
	Volatile int
	// Fired is the number of timers handed to the dispatcher.
	Fired uint64
	// Canceled is the number of successful Cancel calls.
	Canceled uint64
	// Reprogrammed is the number of times a group deadline was (re)armed.
	Reprogrammed uint64
	// SkewSuppressed is the number of times a group deadline was left as is,
	// because the change was within the earliest timer's skew.
	SkewSuppressed uint64
	// UpdatedInPlace is the number of reschedules that didn't need to
	// restructure the heap.
	UpdatedInPlace uint64
	// WaiterStarts is the number of times the waiter goroutine was started.
	WaiterStarts uint64
	// WaiterRunning indicates if the waiter goroutine is currently running.
	WaiterRunning bool
}

// NewManager initializes a new Manager. A panic will occur if dispatcher is
// nil. The waiter goroutine is started on demand, see also Manager.Close.
func NewManager(dispatcher Dispatcher, opts ...ManagerOption) *Manager {
	if dispatcher == nil {
		panic(`timer: nil dispatcher`)
	}
	cfg := resolveManagerOptions(opts)
	m := &Manager{
		dispatcher: dispatcher,
		logger:     cfg.logger,
		grace:      cfg.gracePeriod,
		skew:       cfg.defaultSkew,
		done:       make(chan struct{}),
		retire:     newStoppedTimer(),
	}
	for i := range m.groups {
		m.groups[i].deadline = newStoppedTimer()
	}
	return m
}

// NewTimer creates an unscheduled timer, which will call callback with state,
// via the manager's dispatcher. A panic will occur if callback is nil.
func (m *Manager) NewTimer(callback func(state any), state any, volatile bool, opts ...TimerOption) *Timer {
	if callback == nil {
		panic(`timer: nil callback`)
	}
	var cfg timerOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyTimer(&cfg)
	}
	if !cfg.hasSkew {
		cfg.skew = m.skew
	}
	return &Timer{
		manager:  m,
		callback: callback,
		state:    state,
		skew:     cfg.skew,
		volatile: volatile,
	}
}

// Close unschedules every timer, and stops the waiter goroutine, blocking
// until it exits. Subsequent calls to Set, or Close, return [ErrClosed].
//
// WARNING: Close must not be called by a timer callback that the dispatcher
// runs inline, on the waiter goroutine.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.running = false
	var dropped int
	for i := range m.groups {
		g := &m.groups[i]
		dropped += len(g.queue)
		g.queue.clear()
		g.deadline.Stop()
		g.armed = time.Time{}
	}
	m.retire.Stop()
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()

	m.logger.Debug().
		Int(`dropped`, dropped).
		Log(`timer: manager closed`)

	return nil
}

// Stats returns a snapshot of the manager's state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Stable = len(m.groups[stableGroup].queue)
	stats.Volatile = len(m.groups[volatileGroup].queue)
	stats.WaiterRunning = m.running
	return stats
}

// CheckInvariants validates every heap, returning an error describing the
// first violation found. It is a debug hook, intended for tests.
func (m *Manager) CheckInvariants() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.groups {
		q := m.groups[i].queue
		for j, t := range q {
			if t.index != j+1 {
				return fmt.Errorf(`timer: group %d position %d has index %d`, i, j, t.index)
			}
			if t.volatile != (i == volatileGroup) {
				return fmt.Errorf(`timer: group %d position %d is in the wrong group`, i, j)
			}
			if j > 0 && t.due.Before(q[(j-1)/2].due) {
				return fmt.Errorf(`timer: group %d position %d violates heap order`, i, j)
			}
		}
		if len(q) != 0 && !m.running {
			return fmt.Errorf(`timer: group %d has %d timers but no waiter`, i, len(q))
		}
	}
	if m.closed && m.running {
		return fmt.Errorf(`timer: waiter running after close`)
	}
	return nil
}

func (m *Manager) group(t *Timer) *timerGroup {
	if t.volatile {
		return &m.groups[volatileGroup]
	}
	return &m.groups[stableGroup]
}

func (m *Manager) set(t *Timer, due time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	g := m.group(t)
	if t.index == 0 {
		g.queue.insert(t, due)
		m.idleSince = time.Time{}
	} else if g.queue.update(t, due) {
		m.stats.UpdatedInPlace++
	}

	m.program(g, time.Now())

	if !m.running {
		m.running = true
		m.stats.WaiterStarts++
		m.wg.Add(1)
		go m.wait()
		m.logger.Debug().Log(`timer: waiter started`)
	}

	return nil
}

func (m *Manager) cancel(t *Timer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.index == 0 {
		return false
	}

	g := m.group(t)
	g.queue.remove(t)
	m.stats.Canceled++

	now := time.Now()
	m.program(g, now)
	if m.running && m.empty() {
		// start the grace period now, rather than whenever the removed
		// deadline would have elapsed
		m.idleSince = now
		m.retire.Reset(m.grace)
	}

	return true
}

// program arms the group's deadline for its earliest timer, unless the
// deadline is already within that timer's skew.
func (m *Manager) program(g *timerGroup, now time.Time) {
	next := g.queue.peek()
	if next == nil {
		if !g.armed.IsZero() {
			g.deadline.Stop()
			g.armed = time.Time{}
		}
		return
	}
	if !g.armed.IsZero() {
		diff := g.armed.Sub(next.due)
		if diff < 0 {
			diff = -diff
		}
		if diff <= next.skew {
			m.stats.SkewSuppressed++
			return
		}
	}
	g.deadline.Reset(next.due.Sub(now))
	g.armed = next.due
	m.stats.Reprogrammed++
}

func (m *Manager) empty() bool {
	for i := range m.groups {
		if len(m.groups[i].queue) != 0 {
			return false
		}
	}
	return true
}

func (m *Manager) wait() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case <-m.groups[stableGroup].deadline.C:
		case <-m.groups[volatileGroup].deadline.C:
		case <-m.retire.C:
		}
		if !m.tick() {
			return
		}
	}
}

// tick dispatches every timer due within its skew, and re-arms the group
// deadlines, returning false if the waiter should exit.
func (m *Manager) tick() bool {
	now := time.Now()

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return false
	}

	var due []*Timer
	for i := range m.groups {
		g := &m.groups[i]
		if !g.armed.IsZero() && !g.armed.After(now) {
			g.armed = time.Time{}
		}
		due = g.queue.popDue(due, now)
	}
	for i := range m.groups {
		m.program(&m.groups[i], now)
	}
	m.stats.Fired += uint64(len(due))

	var retired bool
	if m.empty() {
		if m.idleSince.IsZero() {
			m.idleSince = now
		}
		if remaining := m.idleSince.Add(m.grace).Sub(now); remaining > 0 {
			m.retire.Reset(remaining)
		} else {
			m.running = false
			retired = true
		}
	}

	if len(due) > 1 {
		// the groups are independent, merge them
		slices.SortStableFunc(due, func(a, b *Timer) int {
			return a.due.Compare(b.due)
		})
	}

	m.mu.Unlock()

	for _, t := range due {
		m.dispatcher.Schedule(t.callback, t.state)
	}

	if retired {
		m.logger.Debug().Log(`timer: waiter retired`)
	}

	return !retired
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}
