// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iothread

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/joeycumines/go-iothread/asynclock"
	"github.com/joeycumines/go-iothread/inputqueue"
	"github.com/joeycumines/go-iothread/metrics"
	"github.com/joeycumines/go-iothread/scheduler"
	"github.com/joeycumines/go-iothread/timer"
	"github.com/joeycumines/logiface"
)

// ErrClosed is returned by Runtime.Close after the first call.
var ErrClosed = errors.New(`iothread: runtime closed`)

// Runtime owns the scheduler and timer manager, which are intended to be
// shared by everything in a process (or test). It also implements the
// Dispatcher interfaces of the timer and inputqueue packages.
//
// Instances must be initialized using New.
type Runtime struct {
	logger    *logiface.Logger[logiface.Event]
	scheduler *scheduler.Scheduler
	timers    *timer.Manager
	closed    atomic.Bool
}

// New initializes a new Runtime.
func New(opts ...Option) *Runtime {
	cfg := resolveOptions(opts)
	r := &Runtime{logger: cfg.logger}
	r.scheduler = scheduler.New(append([]scheduler.Option{scheduler.WithLogger(cfg.logger)}, cfg.schedulerOptions...)...)
	r.timers = timer.NewManager(r.scheduler, append([]timer.ManagerOption{timer.WithLogger(cfg.logger)}, cfg.timerOptions...)...)
	return r
}

// NewQueue constructs a queue using the runtime's scheduler, timer manager,
// and logger. Options are applied after the logger.
func NewQueue[T any](r *Runtime, opts ...inputqueue.Option[T]) *inputqueue.Queue[T] {
	return inputqueue.New(r.scheduler, r.timers, append([]inputqueue.Option[T]{inputqueue.WithLogger[T](r.logger)}, opts...)...)
}

// NewLock constructs a reentrant async lock.
func (r *Runtime) NewLock() *asynclock.Lock {
	return asynclock.New()
}

// NewCollector returns a Prometheus collector for the runtime's scheduler and
// timer manager. Queues may be added using Collector.AddQueue.
func (r *Runtime) NewCollector(namespace string) *metrics.Collector {
	return metrics.NewCollector(namespace, r.scheduler, r.timers)
}

// Scheduler returns the runtime's scheduler.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.scheduler }

// Timers returns the runtime's timer manager.
func (r *Runtime) Timers() *timer.Manager { return r.timers }

// Logger returns the runtime's logger, which may be nil.
func (r *Runtime) Logger() *logiface.Logger[logiface.Event] { return r.logger }

// Schedule runs callback with state on the runtime's scheduler.
func (r *Runtime) Schedule(callback func(state any), state any) {
	r.scheduler.Schedule(callback, state)
}

// Drain waits for every scheduled callback to complete, or ctx to be done.
func (r *Runtime) Drain(ctx context.Context) error {
	return r.scheduler.Drain(ctx)
}

// Close closes the timer manager (unscheduled timers never fire), then
// drains the scheduler. It must not be called from a scheduled callback.
// Subsequent calls return [ErrClosed].
func (r *Runtime) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	err := r.timers.Close()
	if drainErr := r.scheduler.Drain(ctx); drainErr != nil {
		err = errors.Join(err, drainErr)
	}
	r.logger.Debug().
		Err(err).
		Log(`iothread: runtime closed`)
	return err
}

// CheckInvariants validates the scheduler and timer manager, see their
// CheckInvariants methods. It is a debug hook, and is only meaningful while
// the runtime is quiescent.
func (r *Runtime) CheckInvariants() error {
	return errors.Join(r.scheduler.CheckInvariants(), r.timers.CheckInvariants())
}
