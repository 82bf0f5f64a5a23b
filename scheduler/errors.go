// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupted indicates the head/tail accounting can no longer be
	// trusted, e.g. because the counter space wrapped while items were still
	// outstanding. It is passed to the fatal handler, wrapped in a
	// [FatalError].
	ErrCorrupted = errors.New(`scheduler: head/tail accounting corrupted`)
)

// FatalError describes an internal invariant violation. These are not
// attributable to caller misuse, and are unrecoverable, as the lock-free
// structure cannot be repaired at runtime.
type FatalError struct {
	Cause    error
	Message  string
	HeadTail uint64
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	head, tail := unpack(e.HeadTail)
	if e.Message == `` {
		return fmt.Sprintf(`%v (head=%d tail=%d)`, e.Cause, head, tail)
	}
	return fmt.Sprintf(`%v: %s (head=%d tail=%d)`, e.Cause, e.Message, head, tail)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *FatalError) Unwrap() error {
	return e.Cause
}
