// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package inputqueue

import (
	"io"

	"github.com/joeycumines/logiface"
)

// queueOptions holds configuration options for Queue creation.
type queueOptions[T any] struct {
	logger      *logiface.Logger[logiface.Event]
	disposeItem func(value T)
}

// Option configures a Queue instance.
type Option[T any] interface {
	applyQueue(*queueOptions[T])
}

// optionImpl implements Option.
type optionImpl[T any] struct {
	applyQueueFunc func(*queueOptions[T])
}

func (o *optionImpl[T]) applyQueue(opts *queueOptions[T]) {
	o.applyQueueFunc(opts)
}

// WithDisposeItem sets the function used to release values that will never
// be dequeued, i.e. those buffered when the queue is closed, or enqueued
// after it was shut down. By default, values implementing [io.Closer] are
// closed, and others are dropped.
func WithDisposeItem[T any](dispose func(value T)) Option[T] {
	return &optionImpl[T]{func(opts *queueOptions[T]) {
		opts.disposeItem = dispose
	}}
}

// WithLogger configures structured logging. A nil logger disables logging.
func WithLogger[T any](logger *logiface.Logger[logiface.Event]) Option[T] {
	return &optionImpl[T]{func(opts *queueOptions[T]) {
		opts.logger = logger
	}}
}

func resolveOptions[T any](opts []Option[T]) *queueOptions[T] {
	cfg := &queueOptions[T]{
		disposeItem: closeValue[T],
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyQueue(cfg)
	}
	if cfg.disposeItem == nil {
		cfg.disposeItem = func(T) {}
	}
	return cfg
}

func closeValue[T any](value T) {
	if c, ok := any(value).(io.Closer); ok {
		_ = c.Close()
	}
}
