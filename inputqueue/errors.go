// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package inputqueue

import (
	"errors"
)

var (
	// ErrClosed is returned by any operation on a closed queue.
	ErrClosed = errors.New(`inputqueue: closed`)

	// ErrShutdown is returned when enqueueing to a queue that has been shut
	// down. The item is disposed.
	ErrShutdown = errors.New(`inputqueue: shutdown`)
)
