// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Gate layout: the low half counts producer arrivals, the high half counts
// consumer arrivals. The top bit of each half is a flag, set by the producer
// once the slot is filled (loHiBit), and by whichever party empties it
// (hiHiBit). A gate is complete once both halves are equal, at which point
// the last party resets it to zero.
const (
	hiShift     = 16
	hiOne       = 1 << hiShift
	loHiBit     = hiOne >> 1
	hiHiBit     = loHiBit << hiShift
	loCountMask = loHiBit - 1
	hiCountMask = loCountMask << hiShift
	hiMask      = hiCountMask | hiHiBit
)

// slot is one cell of the ring. It is padded to (at least) a cache line, to
// avoid false sharing between adjacent slots.
type slot struct { // betteralign:ignore
	callback func(state any)
	state    any
	gate     atomic.Uint32
	_        cpu.CacheLinePad
}

func gateComplete(gate uint32) bool {
	return gate&hiMask == gate<<hiShift
}

// enqueue attempts to fill the slot. It reports queued=false if the item was
// not stored, in which case the caller must retry, and wrapped=true if that
// was because the slot still holds an item from the previous lap.
func (s *slot) enqueue(callback func(state any), state any) (queued, wrapped bool) {
	gate := s.gate.Add(1)

	if gate&loCountMask != 1 {
		if gate&loHiBit != 0 && gateComplete(gate) {
			s.gate.CompareAndSwap(gate, 0)
		}
		return false, true
	}

	s.state = state
	s.callback = callback

	gate = s.gate.Add(loHiBit)
	if gate&hiCountMask == 0 {
		return true, false
	}

	// a consumer already came looking for this item, and left with nothing
	s.state = nil
	s.callback = nil

	if gate>>hiShift != gate&loCountMask || !s.gate.CompareAndSwap(gate, 0) {
		gate = s.gate.Add(hiHiBit)
		if gateComplete(gate) {
			s.gate.CompareAndSwap(gate, 0)
		}
	}

	return false, false
}

// dequeue claims the slot's item. A nil callback indicates a synchronization
// artifact (the producer has not filled the slot yet, and will retry
// elsewhere), rather than an empty ring.
func (s *slot) dequeue() (callback func(state any), state any) {
	gate := s.gate.Add(hiOne)

	if gate&loHiBit == 0 {
		// the producer resets the gate, since it is still going to fill it
		return nil, nil
	}

	if gate&hiCountMask == hiOne {
		callback, state = s.callback, s.state
		s.callback, s.state = nil, nil

		if gate&loCountMask != 1 || !s.gate.CompareAndSwap(gate, 0) {
			gate = s.gate.Add(hiHiBit)
			if gateComplete(gate) {
				s.gate.CompareAndSwap(gate, 0)
			}
		}

		return callback, state
	}

	if gateComplete(gate) {
		s.gate.CompareAndSwap(gate, 0)
	}

	return nil, nil
}
