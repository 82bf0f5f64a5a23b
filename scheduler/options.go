// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"github.com/joeycumines/logiface"
)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger          *logiface.Logger[logiface.Event]
	fatalHandler    func(err error)
	panicHandler    func(value any)
	initialCapacity int
}

// Option configures a Scheduler instance.
type Option interface {
	applyScheduler(*schedulerOptions)
}

// optionImpl implements Option.
type optionImpl struct {
	applySchedulerFunc func(*schedulerOptions)
}

func (o *optionImpl) applyScheduler(opts *schedulerOptions) {
	o.applySchedulerFunc(opts)
}

// WithInitialCapacity sets the number of slots in the initial ring. The value
// is rounded up to a power of two, and clamped to [1, MaxCapacity].
// Defaults to 32.
func WithInitialCapacity(capacity int) Option {
	return &optionImpl{func(opts *schedulerOptions) {
		opts.initialCapacity = capacity
	}}
}

// WithLogger configures structured logging. A nil logger disables logging,
// which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) {
		opts.logger = logger
	}}
}

// WithFatalHandler overrides the behavior on an internal invariant violation.
// The default handler logs at emergency level then panics with the error.
// If a custom handler returns, the affected work item is dropped.
func WithFatalHandler(handler func(err error)) Option {
	return &optionImpl{func(opts *schedulerOptions) {
		opts.fatalHandler = handler
	}}
}

// WithPanicHandler registers a function that is called (on the worker
// goroutine) with the recovered value, whenever a callback panics. Panics are
// always logged, and never stop the worker.
func WithPanicHandler(handler func(value any)) Option {
	return &optionImpl{func(opts *schedulerOptions) {
		opts.panicHandler = handler
	}}
}

// resolveOptions applies Option instances to schedulerOptions.
func resolveOptions(opts []Option) *schedulerOptions {
	cfg := &schedulerOptions{
		initialCapacity: defaultCapacity,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyScheduler(cfg)
	}
	cfg.initialCapacity = normalizeCapacity(cfg.initialCapacity)
	return cfg
}

// normalizeCapacity rounds up to the next power of two, within [1, MaxCapacity].
func normalizeCapacity(capacity int) int {
	if capacity >= MaxCapacity {
		return MaxCapacity
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return n
}
