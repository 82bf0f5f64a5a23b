// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

import (
	"errors"
)

var (
	// ErrClosed is returned when attempting to set a timer, or close the
	// manager, after the manager has been closed.
	ErrClosed = errors.New(`timer: manager closed`)
)
