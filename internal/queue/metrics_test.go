// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CounterFunctions(t *testing.T) {
	// Cannot use t.Parallel() - shared global metrics

	tests := []struct {
		name   string
		record func()
		metric prometheus.Counter
		delta  float64
	}{
		{"RecordEnqueued", RecordEnqueued, queueEnqueuedTotal, 1},
		{"RecordEnqueueFailure", RecordEnqueueFailure, queueEnqueueFailures, 1},
		{"RecordDuplicate", RecordDuplicate, queueDuplicatesTotal, 1},
		{"RecordRemoved", func() { RecordRemoved(3) }, queueRemovedTotal, 3},
		{"RecordEvicted", func() { RecordEvicted(2) }, queueEvictedTotal, 2},
		{"RecordExpired", func() { RecordExpired(5) }, queueExpiredTotal, 5},
		{"RecordMaintenanceRun", RecordMaintenanceRun, queueMaintenanceRuns, 1},
		{"RecordGCRun", func() { RecordGCRun(0.01) }, queueGCRuns, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(tt.metric)
			tt.record()
			if got := testutil.ToFloat64(tt.metric) - before; got != tt.delta {
				t.Errorf("delta = %v, want %v", got, tt.delta)
			}
		})
	}
}

func TestMetrics_NonPositiveCountsIgnored(t *testing.T) {
	before := testutil.ToFloat64(queueEvictedTotal)
	RecordEvicted(0)
	RecordEvicted(-1)
	if testutil.ToFloat64(queueEvictedTotal) != before {
		t.Error("non-positive counts should not change the counter")
	}
}

func TestMetrics_QueueSizeTracksStore(t *testing.T) {
	s := setupStore(t, func(c *Config) { c.MaxSize = 3 })
	ctx := context.Background()

	evictedBefore := testutil.ToFloat64(queueEvictedTotal)
	for i := 0; i < 5; i++ {
		mustEnqueue(t, s, testEvent(fmt.Sprintf("m%d", i), baseTime.Add(time.Duration(i)*time.Second)))
	}
	if got := testutil.ToFloat64(queueSize); got != 3 {
		t.Errorf("kiosk_queue_size = %v, want 3", got)
	}
	if got := testutil.ToFloat64(queueEvictedTotal) - evictedBefore; got != 2 {
		t.Errorf("evicted delta = %v, want 2", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := testutil.ToFloat64(queueSize); got != 0 {
		t.Errorf("kiosk_queue_size after Clear = %v", got)
	}
}
