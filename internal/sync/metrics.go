// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_sync_runs_total",
		Help: "Sync runs by result (success, idle, auth, network, rejected, error)",
	}, []string{"result"})

	syncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kiosk_sync_run_duration_seconds",
		Help:    "Duration of sync runs that uploaded at least one batch",
		Buckets: prometheus.DefBuckets,
	})

	syncBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_sync_batches_total",
		Help: "Bulk upload batches by result",
	}, []string{"result"})

	syncItemsSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_sync_items_synced_total",
		Help: "Check-ins acknowledged by the backend and removed from the queue",
	})

	syncItemsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_sync_items_rejected_total",
		Help: "Check-ins the backend reported as failed; they stay queued",
	})

	syncConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_sync_consecutive_failures",
		Help: "Sync runs failed in a row since the last success",
	})

	backendReachable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_backend_reachable",
		Help: "1 when the last health probe succeeded",
	})

	healthProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_backend_probes_total",
		Help: "Backend health probes by result",
	}, []string{"result"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kiosk_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	circuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"name", "from", "to"})

	circuitBreakerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_circuit_breaker_requests_total",
		Help: "Requests through the circuit breaker by result (success, failure, rejected)",
	}, []string{"name", "result"})
)

// RecordRun counts one sync run.
func RecordRun(result string, seconds float64) {
	syncRunsTotal.WithLabelValues(result).Inc()
	if seconds > 0 {
		syncRunDuration.Observe(seconds)
	}
}

// RecordBatch counts one bulk upload.
func RecordBatch(result string) {
	syncBatchesTotal.WithLabelValues(result).Inc()
}

// RecordItems counts acknowledged and rejected check-ins of one batch.
func RecordItems(synced, rejected int) {
	syncItemsSynced.Add(float64(synced))
	syncItemsRejected.Add(float64(rejected))
}

// UpdateConsecutiveFailures sets the failure streak gauge.
func UpdateConsecutiveFailures(n int) {
	syncConsecutiveFailures.Set(float64(n))
}

// UpdateBackendReachable sets the reachability gauge and counts the probe.
func UpdateBackendReachable(reachable bool) {
	if reachable {
		backendReachable.Set(1)
		healthProbesTotal.WithLabelValues("reachable").Inc()
		return
	}
	backendReachable.Set(0)
	healthProbesTotal.WithLabelValues("unreachable").Inc()
}
