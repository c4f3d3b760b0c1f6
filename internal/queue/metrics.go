// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_queue_enqueued_total",
		Help: "Total number of check-ins written to the offline queue",
	})

	queueEnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_queue_enqueue_failures_total",
		Help: "Total number of failed queue writes",
	})

	queueDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_queue_duplicates_total",
		Help: "Total number of enqueues rejected because the id already existed",
	})

	queueRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_queue_removed_total",
		Help: "Total number of check-ins removed after delivery",
	})

	queueEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_queue_evicted_total",
		Help: "Total number of undelivered check-ins evicted by the size cap",
	})

	queueExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_queue_expired_total",
		Help: "Total number of undelivered check-ins purged by age",
	})

	queueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_queue_size",
		Help: "Current number of queued check-ins",
	})

	queueDBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_queue_db_size_bytes",
		Help: "BadgerDB LSM plus value log size in bytes",
	})

	queueEnqueueLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kiosk_queue_enqueue_latency_seconds",
		Help:    "Enqueue latency in seconds, including fsync",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	queueMaintenanceRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_queue_maintenance_runs_total",
		Help: "Total number of periodic maintenance runs",
	})

	queueGCRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_queue_gc_runs_total",
		Help: "Total number of BadgerDB value log GC runs",
	})

	queueGCLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kiosk_queue_gc_latency_seconds",
		Help:    "BadgerDB value log GC latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// RecordEnqueued increments the enqueue counter.
func RecordEnqueued() { queueEnqueuedTotal.Inc() }

// RecordEnqueueFailure increments the failed write counter.
func RecordEnqueueFailure() { queueEnqueueFailures.Inc() }

// RecordDuplicate increments the duplicate id counter.
func RecordDuplicate() { queueDuplicatesTotal.Inc() }

// RecordRemoved adds n delivered removals.
func RecordRemoved(n int) {
	if n > 0 {
		queueRemovedTotal.Add(float64(n))
	}
}

// RecordEvicted adds n size-cap evictions.
func RecordEvicted(n int) {
	if n > 0 {
		queueEvictedTotal.Add(float64(n))
	}
}

// RecordExpired adds n age-based purges.
func RecordExpired(n int) {
	if n > 0 {
		queueExpiredTotal.Add(float64(n))
	}
}

// UpdateQueueSize sets the queue size gauge.
func UpdateQueueSize(n int) { queueSize.Set(float64(n)) }

// UpdateDBSize sets the on-disk size gauge.
func UpdateDBSize(lsm, vlog int64) { queueDBSizeBytes.Set(float64(lsm + vlog)) }

// RecordEnqueueLatency observes one enqueue duration.
func RecordEnqueueLatency(seconds float64) { queueEnqueueLatency.Observe(seconds) }

// RecordMaintenanceRun increments the maintenance counter.
func RecordMaintenanceRun() { queueMaintenanceRuns.Inc() }

// RecordGCRun records one value log GC pass.
func RecordGCRun(seconds float64) {
	queueGCRuns.Inc()
	queueGCLatency.Observe(seconds)
}
