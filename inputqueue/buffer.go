// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package inputqueue

const (
	// chunkSize is the number of items per node in the itemBuffer linked list.
	chunkSize = 32
)

// item is a value or error, consumed exactly once, by a reader, or by
// disposal.
type item[T any] struct {
	value      T
	err        error
	onDequeued func()
}

// itemBuffer is a chunked linked-list FIFO of items, that tracks how many of
// the most recently enqueued items are pending, i.e. not yet visible to
// readers. The oldest total-pending items are available.
//
// Thread Safety: This struct is NOT thread-safe.
// The caller must provide external synchronization (the queue's mutex).
type itemBuffer[T any] struct {
	head    *itemChunk[T]
	tail    *itemChunk[T]
	spare   *itemChunk[T]
	total   int
	pending int
}

// itemChunk is a fixed-size node in the chunked linked-list.
// It uses readPos/pos cursors for O(1) push/pop without shifting.
type itemChunk[T any] struct {
	items   [chunkSize]item[T]
	next    *itemChunk[T]
	readPos int
	pos     int
}

func (b *itemBuffer[T]) newChunk() *itemChunk[T] {
	if c := b.spare; c != nil {
		b.spare = nil
		return c
	}
	return new(itemChunk[T])
}

// releaseChunk keeps one exhausted chunk for reuse. Slots are cleared on pop.
func (b *itemBuffer[T]) releaseChunk(c *itemChunk[T]) {
	c.pos = 0
	c.readPos = 0
	c.next = nil
	b.spare = c
}

func (b *itemBuffer[T]) push(it item[T]) {
	if b.tail == nil {
		b.tail = b.newChunk()
		b.head = b.tail
	}

	if b.tail.pos == len(b.tail.items) {
		newTail := b.newChunk()
		b.tail.next = newTail
		b.tail = newTail
	}

	b.tail.items[b.tail.pos] = it
	b.tail.pos++
	b.total++
}

func (b *itemBuffer[T]) pop() item[T] {
	if b.head.readPos >= b.head.pos {
		// exhausted, and not the only chunk, since total != 0
		oldHead := b.head
		b.head = b.head.next
		b.releaseChunk(oldHead)
	}

	it := b.head.items[b.head.readPos]
	// zero out popped slot for GC safety
	b.head.items[b.head.readPos] = item[T]{}
	b.head.readPos++
	b.total--

	if b.total == 0 {
		// reset cursors for reuse
		b.head.pos = 0
		b.head.readPos = 0
	}

	return it
}

// enqueueAvailable appends an item, counted as available.
func (b *itemBuffer[T]) enqueueAvailable(it item[T]) {
	b.push(it)
}

// enqueuePending appends an item, counted as pending, until a matching call
// to makePendingAvailable.
func (b *itemBuffer[T]) enqueuePending(it item[T]) {
	b.push(it)
	b.pending++
}

// makePendingAvailable promotes the oldest pending item, returning false if
// there are none.
func (b *itemBuffer[T]) makePendingAvailable() bool {
	if b.pending == 0 {
		return false
	}
	b.pending--
	return true
}

func (b *itemBuffer[T]) dequeueAvailable() (item[T], bool) {
	if !b.hasAvailable() {
		return item[T]{}, false
	}
	return b.pop(), true
}

// dequeueAny removes the oldest item, regardless of visibility.
func (b *itemBuffer[T]) dequeueAny() (item[T], bool) {
	if b.total == 0 {
		return item[T]{}, false
	}
	it := b.pop()
	b.pending = min(b.pending, b.total)
	return it, true
}

func (b *itemBuffer[T]) hasAvailable() bool { return b.total != b.pending }

func (b *itemBuffer[T]) hasAny() bool { return b.total != 0 }
