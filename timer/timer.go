// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

import (
	"time"
)

// Timer is a one-shot, resettable, delayed callback. Once it elapses, the
// callback is handed to the manager's Dispatcher, and the timer becomes
// unscheduled, and may be set again.
//
// A Timer must be created using Manager.NewTimer. All methods are safe for
// concurrent use.
type Timer struct {
	manager  *Manager
	callback func(state any)
	state    any
	due      time.Time
	skew     time.Duration
	// index is the position in the group's queue plus one, or 0 if not
	// scheduled, guarded by manager.mu
	index    int
	volatile bool
}

// Set schedules the timer to fire after delay, replacing any previous due
// time. Non-positive delays fire as soon as the waiter observes them.
func (t *Timer) Set(delay time.Duration) error {
	return t.SetAt(time.Now().Add(delay))
}

// SetAt schedules the timer to fire at due, replacing any previous due time.
// It returns [ErrClosed] if the manager has been closed.
func (t *Timer) SetAt(due time.Time) error {
	return t.manager.set(t, due)
}

// Cancel unschedules the timer, returning false if it was not scheduled,
// i.e. it was never set, has already been canceled, or has already fired.
// A timer canceled before it fires will never call its callback.
func (t *Timer) Cancel() bool {
	return t.manager.cancel(t)
}

// Scheduled reports whether the timer is waiting to fire.
func (t *Timer) Scheduled() bool {
	t.manager.mu.Lock()
	defer t.manager.mu.Unlock()
	return t.index != 0
}

// Due returns the most recently set due time, which is only meaningful
// if the timer has been set.
func (t *Timer) Due() time.Time {
	t.manager.mu.Lock()
	defer t.manager.mu.Unlock()
	return t.due
}

// Volatile reports the group the timer belongs to.
func (t *Timer) Volatile() bool {
	return t.volatile
}
