// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iothread

import (
	"github.com/joeycumines/go-iothread/scheduler"
	"github.com/joeycumines/go-iothread/timer"
	"github.com/joeycumines/logiface"
)

// runtimeOptions holds configuration options for Runtime creation.
type runtimeOptions struct {
	logger           *logiface.Logger[logiface.Event]
	schedulerOptions []scheduler.Option
	timerOptions     []timer.ManagerOption
}

// Option configures a Runtime instance.
type Option interface {
	applyRuntime(*runtimeOptions)
}

// optionImpl implements Option.
type optionImpl struct {
	applyRuntimeFunc func(*runtimeOptions)
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) {
	o.applyRuntimeFunc(opts)
}

// WithLogger configures structured logging, for the runtime and the
// components it constructs. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runtimeOptions) {
		opts.logger = logger
	}}
}

// WithSchedulerOptions appends options used to construct the scheduler.
// They are applied after the runtime's logger, so may override it.
func WithSchedulerOptions(options ...scheduler.Option) Option {
	return &optionImpl{func(opts *runtimeOptions) {
		opts.schedulerOptions = append(opts.schedulerOptions, options...)
	}}
}

// WithTimerOptions appends options used to construct the timer manager.
// They are applied after the runtime's logger, so may override it.
func WithTimerOptions(options ...timer.ManagerOption) Option {
	return &optionImpl{func(opts *runtimeOptions) {
		opts.timerOptions = append(opts.timerOptions, options...)
	}}
}

// WithConfig applies the scheduler and timer settings from cfg. The log
// settings are not applied, see Config.Logger. A nil cfg is ignored.
func WithConfig(cfg *Config) Option {
	return &optionImpl{func(opts *runtimeOptions) {
		if cfg == nil {
			return
		}
		if cfg.Scheduler.InitialCapacity != 0 {
			opts.schedulerOptions = append(opts.schedulerOptions, scheduler.WithInitialCapacity(cfg.Scheduler.InitialCapacity))
		}
		if cfg.Timer.GracePeriod != 0 {
			opts.timerOptions = append(opts.timerOptions, timer.WithGracePeriod(cfg.Timer.GracePeriod))
		}
		if cfg.Timer.DefaultSkew != 0 {
			opts.timerOptions = append(opts.timerOptions, timer.WithDefaultSkew(cfg.Timer.DefaultSkew))
		}
	}}
}

func resolveOptions(opts []Option) *runtimeOptions {
	cfg := new(runtimeOptions)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRuntime(cfg)
	}
	return cfg
}
