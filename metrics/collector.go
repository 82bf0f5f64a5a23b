// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package metrics exports scheduler, timer, and queue statistics, as
// Prometheus metrics.
package metrics

import (
	"sync"

	"github.com/joeycumines/go-iothread/scheduler"
	"github.com/joeycumines/go-iothread/timer"
	"github.com/prometheus/client_golang/prometheus"
)

// Queue is implemented by *inputqueue.Queue.
type Queue interface {
	Len() int
	Pending() int
	Readers() int
	Waiters() int
}

// Collector is a prometheus.Collector, which reads statistics on each
// scrape. Register it with a prometheus.Registerer.
type Collector struct {
	scheduler *scheduler.Scheduler
	timers    *timer.Manager
	queues    map[string]Queue

	schedulerScheduled *prometheus.Desc
	schedulerExecuted  *prometheus.Desc
	schedulerArtifacts *prometheus.Desc
	schedulerRetries   *prometheus.Desc
	schedulerWorkers   *prometheus.Desc
	schedulerGrown     *prometheus.Desc
	schedulerPanics    *prometheus.Desc
	schedulerPending   *prometheus.Desc
	schedulerCapacity  *prometheus.Desc

	timersScheduled      *prometheus.Desc
	timersFired          *prometheus.Desc
	timersCanceled       *prometheus.Desc
	timersReprogrammed   *prometheus.Desc
	timersSkewSuppressed *prometheus.Desc
	timerWaiterStarts    *prometheus.Desc
	timerWaiterRunning   *prometheus.Desc

	queueItems   *prometheus.Desc
	queuePending *prometheus.Desc
	queueReaders *prometheus.Desc
	queueWaiters *prometheus.Desc

	mu sync.Mutex
}

// NewCollector returns a collector for the given components. Either of
// sched or timers may be nil, in which case their metrics are omitted.
// Metric names are prefixed with namespace, if non-empty.
func NewCollector(namespace string, sched *scheduler.Scheduler, timers *timer.Manager) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		scheduler: sched,
		timers:    timers,
		queues:    make(map[string]Queue),

		schedulerScheduled: desc(`scheduler`, `scheduled_total`, `Number of work items scheduled.`),
		schedulerExecuted:  desc(`scheduler`, `executed_total`, `Number of work items executed, including those that panicked.`),
		schedulerArtifacts: desc(`scheduler`, `artifacts_total`, `Number of empty slots drained, due to a consumer overtaking its producer.`),
		schedulerRetries:   desc(`scheduler`, `retries_total`, `Number of times a producer claimed another slot.`),
		schedulerWorkers:   desc(`scheduler`, `workers_spawned_total`, `Number of worker goroutines spawned.`),
		schedulerGrown:     desc(`scheduler`, `growths_total`, `Number of times the slot ring was replaced by a larger one.`),
		schedulerPanics:    desc(`scheduler`, `panics_total`, `Number of work items that panicked.`),
		schedulerPending:   desc(`scheduler`, `pending`, `Number of scheduled work items yet to complete.`),
		schedulerCapacity:  desc(`scheduler`, `capacity`, `Number of slots in the current ring.`),

		timersScheduled:      desc(`timer`, `scheduled`, `Number of scheduled timers.`, `group`),
		timersFired:          desc(`timer`, `fired_total`, `Number of timers dispatched.`),
		timersCanceled:       desc(`timer`, `canceled_total`, `Number of timers canceled before firing.`),
		timersReprogrammed:   desc(`timer`, `deadline_reprogrammed_total`, `Number of times a group deadline was armed.`),
		timersSkewSuppressed: desc(`timer`, `deadline_skew_suppressed_total`, `Number of deadline changes absorbed by skew tolerance.`),
		timerWaiterStarts:    desc(`timer`, `waiter_starts_total`, `Number of times the waiter goroutine was started.`),
		timerWaiterRunning:   desc(`timer`, `waiter_running`, `Whether the waiter goroutine is running.`),

		queueItems:   desc(`queue`, `items`, `Number of buffered items, including pending items.`, `queue`),
		queuePending: desc(`queue`, `pending_items`, `Number of buffered items not yet visible to readers.`, `queue`),
		queueReaders: desc(`queue`, `readers`, `Number of outstanding dequeue requests.`, `queue`),
		queueWaiters: desc(`queue`, `waiters`, `Number of outstanding availability requests.`, `queue`),
	}
}

// AddQueue includes q in subsequent scrapes, labeled with name, replacing
// any queue previously added with the same name.
func (c *Collector) AddQueue(name string, q Queue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[name] = q
}

// RemoveQueue excludes the named queue from subsequent scrapes.
func (c *Collector) RemoveQueue(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queues, name)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range [...]*prometheus.Desc{
		c.schedulerScheduled,
		c.schedulerExecuted,
		c.schedulerArtifacts,
		c.schedulerRetries,
		c.schedulerWorkers,
		c.schedulerGrown,
		c.schedulerPanics,
		c.schedulerPending,
		c.schedulerCapacity,
		c.timersScheduled,
		c.timersFired,
		c.timersCanceled,
		c.timersReprogrammed,
		c.timersSkewSuppressed,
		c.timerWaiterStarts,
		c.timerWaiterRunning,
		c.queueItems,
		c.queuePending,
		c.queueReaders,
		c.queueWaiters,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.scheduler != nil {
		s := c.scheduler.Stats()
		counter(ch, c.schedulerScheduled, s.Scheduled)
		counter(ch, c.schedulerExecuted, s.Executed)
		counter(ch, c.schedulerArtifacts, s.Artifacts)
		counter(ch, c.schedulerRetries, s.Retries)
		counter(ch, c.schedulerWorkers, s.Workers)
		counter(ch, c.schedulerGrown, s.Grown)
		counter(ch, c.schedulerPanics, s.Panics)
		ch <- prometheus.MustNewConstMetric(c.schedulerPending, prometheus.GaugeValue, float64(s.Pending))
		ch <- prometheus.MustNewConstMetric(c.schedulerCapacity, prometheus.GaugeValue, float64(s.Capacity))
	}

	if c.timers != nil {
		s := c.timers.Stats()
		ch <- prometheus.MustNewConstMetric(c.timersScheduled, prometheus.GaugeValue, float64(s.Stable), `stable`)
		ch <- prometheus.MustNewConstMetric(c.timersScheduled, prometheus.GaugeValue, float64(s.Volatile), `volatile`)
		counter(ch, c.timersFired, s.Fired)
		counter(ch, c.timersCanceled, s.Canceled)
		counter(ch, c.timersReprogrammed, s.Reprogrammed)
		counter(ch, c.timersSkewSuppressed, s.SkewSuppressed)
		counter(ch, c.timerWaiterStarts, s.WaiterStarts)
		var running float64
		if s.WaiterRunning {
			running = 1
		}
		ch <- prometheus.MustNewConstMetric(c.timerWaiterRunning, prometheus.GaugeValue, running)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, q := range c.queues {
		ch <- prometheus.MustNewConstMetric(c.queueItems, prometheus.GaugeValue, float64(q.Len()), name)
		ch <- prometheus.MustNewConstMetric(c.queuePending, prometheus.GaugeValue, float64(q.Pending()), name)
		ch <- prometheus.MustNewConstMetric(c.queueReaders, prometheus.GaugeValue, float64(q.Readers()), name)
		ch <- prometheus.MustNewConstMetric(c.queueWaiters, prometheus.GaugeValue, float64(q.Waiters()), name)
	}
}

func counter(ch chan<- prometheus.Metric, desc *prometheus.Desc, value uint64) {
	ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
}
