// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package inputqueue implements a generic FIFO that hands items from many
// producers to many consumers, which may block, or be notified via callback,
// or via a future.
//
// Items are either available, or pending. A pending item has been committed
// by a producer, but is not yet visible to readers, until Queue.Dispatch is
// called. Queue.EnqueueAndDispatch uses this to defer handing an item to a
// waiting reader onto the dispatcher, unless the caller opts into completing
// the reader on its own goroutine.
//
// Every request that can time out shares one race: on expiry, the request
// tries to remove itself from the queue, and, if it can't, an item is already
// being handed to it, which it waits for, rather than losing.
package inputqueue
