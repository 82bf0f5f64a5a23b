// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timer

import (
	"container/heap"
	"time"
)

// timerQueue is a min-heap of timers, ordered by due time.
// Each timer tracks its own position (index+1, 0 meaning not queued), so
// removal and update of an arbitrary timer is O(log n).
type timerQueue []*Timer

// Implement heap.Interface for timerQueue
func (q timerQueue) Len() int           { return len(q) }
func (q timerQueue) Less(i, j int) bool { return q[i].due.Before(q[j].due) }

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i + 1
	q[j].index = j + 1
}

func (q *timerQueue) Push(x any) {
	t := x.(*Timer)
	*q = append(*q, t)
	t.index = len(*q)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = 0
	*q = old[:n-1]
	return t
}

// peek returns the earliest timer, or nil.
func (q timerQueue) peek() *Timer {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func (q *timerQueue) insert(t *Timer, due time.Time) {
	t.due = due
	heap.Push(q, t)
}

func (q *timerQueue) remove(t *Timer) {
	heap.Remove(q, t.index-1)
}

// update changes the due time of a queued timer. If the heap property still
// holds at its position, the value is patched in place, and inPlace is true.
func (q *timerQueue) update(t *Timer, due time.Time) (inPlace bool) {
	i := t.index - 1
	t.due = due
	if q.ordered(i) {
		return true
	}
	heap.Fix(q, i)
	return false
}

// ordered reports whether the element at i is ordered relative to its parent
// and children.
func (q timerQueue) ordered(i int) bool {
	if i > 0 && q[i].due.Before(q[(i-1)/2].due) {
		return false
	}
	for _, c := range [...]int{2*i + 1, 2*i + 2} {
		if c < len(q) && q[c].due.Before(q[i].due) {
			return false
		}
	}
	return true
}

// popDue removes and appends each earliest timer whose due time, less its
// skew, is at or before now, to dst.
func (q *timerQueue) popDue(dst []*Timer, now time.Time) []*Timer {
	for len(*q) != 0 && (*q)[0].due.Sub(now) <= (*q)[0].skew {
		dst = append(dst, heap.Pop(q).(*Timer))
	}
	return dst
}

// clear unschedules every timer.
func (q *timerQueue) clear() {
	for i, t := range *q {
		t.index = 0
		(*q)[i] = nil
	}
	*q = (*q)[:0]
}
