// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/cpu"
)

const (
	// MaxCapacity is the maximum number of slots in a ring, bounded by the
	// 15 bit arrival counts packed into each gate.
	MaxCapacity = 1 << 15

	defaultCapacity = 32

	headOne = uint64(1) << 32

	drainPollMin = 50 * time.Microsecond
	drainPollMax = 10 * time.Millisecond
)

// Scheduler runs work items on dynamically spawned worker goroutines.
// Schedule never blocks, and every scheduled item runs exactly once.
//
// Instances must be initialized using New, and are intended to be shared:
// construct one per process (or per test) and pass it to dependents.
type Scheduler struct { // betteralign:ignore
	current atomic.Pointer[ring]

	logger       *logiface.Logger[logiface.Event]
	fatalHandler func(err error)
	panicHandler func(value any)

	pending atomic.Int64

	scheduled atomic.Uint64
	executed  atomic.Uint64
	artifacts atomic.Uint64
	retries   atomic.Uint64
	workers   atomic.Uint64
	grown     atomic.Uint64
	panics    atomic.Uint64
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	// Scheduled is the number of Schedule calls.
	Scheduled uint64
	// Executed is the number of callbacks that have run (including panics).
	Executed uint64
	// Artifacts is the number of nil items drained, due to a consumer
	// reaching a slot before its producer.
	Artifacts uint64
	// Retries is the number of times a producer had to claim a new slot.
	Retries uint64
	// Workers is the number of worker goroutines spawned, one per
	// idle to active transition.
	Workers uint64
	// Grown is the number of times the ring was replaced by a larger one.
	Grown uint64
	// Panics is the number of callbacks that panicked.
	Panics uint64
	// Pending is the number of scheduled callbacks yet to complete.
	Pending int64
	// Capacity is the slot count of the current ring.
	Capacity int
}

// ring is one generation of the scheduler's slot array. When a producer
// wraps onto an occupied slot, the ring is replaced, and the old one drains
// naturally.
type ring struct { // betteralign:ignore
	owner *Scheduler
	slots []slot
	mask  uint32
	_     cpu.CacheLinePad
	// headTail packs the producer position (high) and consumer position (low)
	headTail atomic.Uint64
	_        cpu.CacheLinePad
}

// New initializes a new Scheduler. Worker goroutines are only running while
// there is work, so there is nothing to close, see also Scheduler.Drain.
func New(opts ...Option) *Scheduler {
	cfg := resolveOptions(opts)
	s := &Scheduler{
		logger:       cfg.logger,
		fatalHandler: cfg.fatalHandler,
		panicHandler: cfg.panicHandler,
	}
	s.current.Store(s.newRing(cfg.initialCapacity))
	return s
}

// Schedule queues callback to be called with state, on a worker goroutine.
// It never blocks. A panic will occur if callback is nil.
func (s *Scheduler) Schedule(callback func(state any), state any) {
	if callback == nil {
		panic(`scheduler: nil callback`)
	}
	s.scheduled.Add(1)
	s.pending.Add(1)
	for !s.current.Load().schedule(callback, state) {
		s.retries.Add(1)
	}
}

// Go is a convenience wrapper around Schedule, for closures.
func (s *Scheduler) Go(fn func()) {
	if fn == nil {
		panic(`scheduler: nil func`)
	}
	s.Schedule(runFunc, fn)
}

func runFunc(state any) { state.(func())() }

// Drain blocks until every callback scheduled prior to (and during) the call
// has completed, or ctx is done. It is unsafe to call from within a callback,
// as the calling callback would never complete.
func (s *Scheduler) Drain(ctx context.Context) error {
	delay := drainPollMin
	var timer *time.Timer
	for s.pending.Load() != 0 {
		if timer == nil {
			timer = time.NewTimer(delay)
			//goland:noinspection GoDeferInLoop
			defer timer.Stop()
		} else {
			timer.Reset(delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if delay < drainPollMax {
			delay *= 2
		}
	}
	return nil
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Scheduled: s.scheduled.Load(),
		Executed:  s.executed.Load(),
		Artifacts: s.artifacts.Load(),
		Retries:   s.retries.Load(),
		Workers:   s.workers.Load(),
		Grown:     s.grown.Load(),
		Panics:    s.panics.Load(),
		Pending:   s.pending.Load(),
		Capacity:  len(s.current.Load().slots),
	}
}

// CheckInvariants validates the current ring, returning an error describing
// the first violation found. It is a debug hook, and is only meaningful while
// the scheduler is quiescent (e.g. after Drain, with no concurrent Schedule).
func (s *Scheduler) CheckInvariants() error {
	r := s.current.Load()
	n := len(r.slots)
	if n == 0 || n > MaxCapacity || n&(n-1) != 0 {
		return fmt.Errorf(`scheduler: invalid capacity %d`, n)
	}
	if r.mask != uint32(n-1) {
		return fmt.Errorf(`scheduler: mask %#x does not match capacity %d`, r.mask, n)
	}
	ht := r.headTail.Load()
	if c := count(ht); c != -1 {
		return &FatalError{Cause: ErrCorrupted, Message: fmt.Sprintf(`expected idle, count=%d`, c), HeadTail: ht}
	}
	if p := s.pending.Load(); p != 0 {
		return fmt.Errorf(`scheduler: %d callbacks pending`, p)
	}
	for i := range r.slots {
		if g := r.slots[i].gate.Load(); g != 0 {
			return fmt.Errorf(`scheduler: slot %d has non-zero gate %#x`, i, g)
		}
		if r.slots[i].callback != nil || r.slots[i].state != nil {
			return fmt.Errorf(`scheduler: slot %d retains a work item`, i)
		}
	}
	return nil
}

func (s *Scheduler) newRing(capacity int) *ring {
	r := &ring{
		owner: s,
		slots: make([]slot, capacity),
		mask:  uint32(capacity - 1),
	}
	// tail one ahead of head: idle
	r.headTail.Store(pack(0, 1))
	return r
}

// grow replaces old with a ring twice its size, unless another producer
// already did so.
func (s *Scheduler) grow(old *ring) {
	capacity := min(len(old.slots)*2, MaxCapacity)
	if s.current.CompareAndSwap(old, s.newRing(capacity)) {
		s.grown.Add(1)
		s.logger.Notice().
			Int(`from`, len(old.slots)).
			Int(`to`, capacity).
			Log(`scheduler: ring wrapped, capacity increased`)
	}
}

func (s *Scheduler) spawn(r *ring) {
	s.workers.Add(1)
	s.logger.Trace().
		Int(`capacity`, len(r.slots)).
		Log(`scheduler: worker spawned`)
	go r.work()
}

func (s *Scheduler) execute(callback func(state any), state any) {
	defer func() {
		r := recover()
		s.executed.Add(1)
		s.pending.Add(-1)
		if r != nil {
			s.panics.Add(1)
			s.logger.Err().
				Any(`panic`, r).
				Log(`scheduler: callback panicked`)
			if s.panicHandler != nil {
				s.panicHandler(r)
			}
		}
	}()
	callback(state)
}

func (s *Scheduler) fatal(err error) {
	s.logger.Emerg().
		Err(err).
		Log(`scheduler: unrecoverable invariant violation`)
	if s.fatalHandler != nil {
		s.fatalHandler(err)
		return
	}
	panic(err)
}

// schedule attempts to store the work item, returning false if the caller
// must retry (possibly against a new ring).
func (r *ring) schedule(callback func(state any), state any) bool {
	ht := r.headTail.Add(headOne)

	wasIdle := count(ht) == 0
	if wasIdle {
		// the worker we are about to spawn expects a real position
		ht = r.headTail.Add(headOne)
	}

	if count(ht) == -1 {
		// the head lapped the tail: every outstanding position is ambiguous
		r.owner.fatal(&FatalError{Cause: ErrCorrupted, Message: `head/tail overflow`, HeadTail: ht})
		// the handler returned, the work item is dropped
		r.owner.logger.Emerg().
			Uint64(`head_tail`, ht).
			Log(`scheduler: work item dropped`)
		r.owner.pending.Add(-1)
		return true
	}

	head, _ := unpack(ht)
	queued, wrapped := r.slots[(head-1)&r.mask].enqueue(callback, state)

	if wrapped {
		r.owner.grow(r)
	}

	if wasIdle {
		r.owner.spawn(r)
	}

	return queued
}

func (r *ring) work() {
	for {
		callback, state, ok := r.next()
		if !ok {
			return
		}
		if callback == nil {
			r.owner.artifacts.Add(1)
			continue
		}
		r.owner.execute(callback, state)
	}
}

// next claims the next position, or transitions the ring to idle, in which
// case it returns ok=false and the worker must exit.
func (r *ring) next() (callback func(state any), state any, ok bool) {
	for {
		ht := r.headTail.Load()
		head, tail := unpack(ht)
		c := int32(head - tail)
		if c < 0 {
			r.owner.fatal(&FatalError{Cause: ErrCorrupted, Message: `worker running while idle`, HeadTail: ht})
			return nil, nil, false
		}
		if !r.headTail.CompareAndSwap(ht, pack(head, tail+1)) {
			continue
		}
		if c == 0 {
			return nil, nil, false
		}
		callback, state = r.slots[tail&r.mask].dequeue()
		return callback, state, true
	}
}

func pack(head, tail uint32) uint64 {
	return uint64(head)<<32 | uint64(tail)
}

func unpack(ht uint64) (head, tail uint32) {
	return uint32(ht >> 32), uint32(ht)
}

// count returns the number of claimed positions not yet consumed, or -1 if
// idle.
func count(ht uint64) int32 {
	head, tail := unpack(ht)
	return int32(head - tail)
}
