// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package iothread wires together an in-process concurrency substrate: a
// lock-free work scheduler, a timer manager that dispatches onto it, async
// capable queues, and a reentrant async lock.
//
// A Runtime owns the scheduler and timer manager. Construct one per process
// (or per test), and pass it to dependents, rather than relying on globals.
//
// Subpackages may be used directly:
//
//   - [github.com/joeycumines/go-iothread/scheduler]
//   - [github.com/joeycumines/go-iothread/timer]
//   - [github.com/joeycumines/go-iothread/inputqueue]
//   - [github.com/joeycumines/go-iothread/asynclock]
//   - [github.com/joeycumines/go-iothread/future]
//   - [github.com/joeycumines/go-iothread/metrics]
package iothread
