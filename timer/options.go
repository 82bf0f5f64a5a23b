// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

import (
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultGracePeriod is how long the waiter goroutine lingers, after both
	// groups become empty, before it retires.
	DefaultGracePeriod = time.Second

	// DefaultSkew is the default tolerance applied to timers, within which
	// the waiter's deadline is not reprogrammed, and a timer may be
	// dispatched by a wake for another.
	DefaultSkew = 100 * time.Millisecond
)

// managerOptions holds configuration options for Manager creation.
type managerOptions struct {
	logger      *logiface.Logger[logiface.Event]
	gracePeriod time.Duration
	defaultSkew time.Duration
}

// ManagerOption configures a Manager instance.
type ManagerOption interface {
	applyManager(*managerOptions)
}

// managerOptionImpl implements ManagerOption.
type managerOptionImpl struct {
	applyManagerFunc func(*managerOptions)
}

func (o *managerOptionImpl) applyManager(opts *managerOptions) {
	o.applyManagerFunc(opts)
}

// WithGracePeriod sets how long the waiter goroutine remains after the last
// timer is removed. Non-positive values retire the waiter immediately.
// Defaults to [DefaultGracePeriod].
func WithGracePeriod(d time.Duration) ManagerOption {
	return &managerOptionImpl{func(opts *managerOptions) {
		opts.gracePeriod = max(d, 0)
	}}
}

// WithDefaultSkew sets the skew used by timers that don't specify one.
// Defaults to [DefaultSkew].
func WithDefaultSkew(d time.Duration) ManagerOption {
	return &managerOptionImpl{func(opts *managerOptions) {
		opts.defaultSkew = max(d, 0)
	}}
}

// WithLogger configures structured logging. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) ManagerOption {
	return &managerOptionImpl{func(opts *managerOptions) {
		opts.logger = logger
	}}
}

func resolveManagerOptions(opts []ManagerOption) *managerOptions {
	cfg := &managerOptions{
		gracePeriod: DefaultGracePeriod,
		defaultSkew: DefaultSkew,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyManager(cfg)
	}
	return cfg
}

// timerOptions holds per-timer configuration.
type timerOptions struct {
	skew    time.Duration
	hasSkew bool
}

// TimerOption configures a Timer instance.
type TimerOption interface {
	applyTimer(*timerOptions)
}

type timerOptionImpl struct {
	applyTimerFunc func(*timerOptions)
}

func (o *timerOptionImpl) applyTimer(opts *timerOptions) {
	o.applyTimerFunc(opts)
}

// WithSkew sets the timer's tolerance: a change to the earliest due time of
// its group, by no more than skew, does not reprogram the group's deadline,
// and the timer may be dispatched by any wake of the waiter within skew of
// its due time, before or after it. A skew of zero means the timer never
// fires early.
func WithSkew(skew time.Duration) TimerOption {
	return &timerOptionImpl{func(opts *timerOptions) {
		opts.skew = max(skew, 0)
		opts.hasSkew = true
	}}
}
