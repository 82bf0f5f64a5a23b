// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package inputqueue

// State represents the lifecycle state of a [Queue].
//
// State Machine:
//
//	Open → Shutdown   [Shutdown()]
//	Open → Closed     [Close()]
//	Shutdown → Closed [Close()]
//	Closed → (terminal)
type State int

const (
	// Open indicates the queue accepts items, and readers wait for them.
	Open State = iota
	// Shutdown indicates the queue no longer accepts items, but buffered
	// items still drain to readers, after which readers see end-of-stream.
	Shutdown
	// Closed indicates the queue has been closed, and any buffered items
	// were disposed.
	Closed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case Shutdown:
		return "Shutdown"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}
