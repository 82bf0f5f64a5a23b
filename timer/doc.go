// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package timer implements delayed, one-shot callbacks, which are dispatched
// (e.g. onto a scheduler.Scheduler) once they elapse.
//
// Timers belong to one of two groups. Volatile timers are expected to be set
// then canceled shortly after (retries, flushes), while stable timers are
// longer-lived. Each group keeps its own min-heap and its own deadline, so
// churn in the volatile group never reprograms the stable group's deadline.
//
// A single waiter goroutine per Manager waits for the earliest group
// deadline. It is started on demand, and retires after both groups have been
// empty for the grace period.
//
// Each timer has a skew tolerance. Changes that move a group's earliest due
// time by no more than the skew of that earliest timer leave the group's
// deadline as is. When the waiter wakes, it also dispatches earliest timers that
// are due within their skew, so nearby timers share a wake.
package timer
