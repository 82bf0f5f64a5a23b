// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package scheduler implements a low-lock work dispatcher, which runs
// (callback, state) pairs on dynamically spawned worker goroutines.
//
// # Algorithm
//
// Work items are stored in a power-of-two ring of slots. A single packed
// 64-bit counter holds the producer position (head, high half) and the
// consumer position (tail, low half). Producers claim a position with one
// atomic add, consumers with one compare-and-swap, and neither side ever
// blocks. A count of -1 (head one behind tail) is the idle sentinel: the
// producer whose add moves the scheduler out of idle is responsible for
// spawning exactly one worker goroutine, which drains the ring and exits once
// it observes the scheduler empty.
//
// Each slot carries a gate, a packed counter of producer arrivals (low half)
// and consumer arrivals (high half), each with a completion flag. The gate
// resolves the races between a consumer reaching a slot before its producer
// has filled it (the consumer takes a nil "artifact", the producer retries
// elsewhere) and a producer reaching a slot that still holds an item from the
// previous lap (the ring is replaced by one twice the size, up to
// [MaxCapacity] slots).
//
// # Ordering
//
// Dispatch is near-FIFO: a single worker drains items in claim order, but
// concurrent producers may interleave arbitrarily, and retried items move to
// the back.
//
// # Usage
//
//	s := scheduler.New(scheduler.WithLogger(logger))
//	s.Schedule(func(state any) {
//	    fmt.Println(state)
//	}, "hello")
//	_ = s.Drain(ctx)
package scheduler
