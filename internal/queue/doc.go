// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package queue is the durable store of check-ins awaiting upload.
//
// Events are kept in BadgerDB with SyncWrites on, so an acknowledged
// Enqueue survives power loss. Three key families are maintained per event:
// the JSON record, an ordering index on createdAt, and a lookup index on the
// badge serial number. Enumeration, Dequeue and Peek follow the ordering
// index, which makes FIFO order and expiry pruning plain prefix scans.
//
// The store never holds more than Config.MaxSize events. When an Enqueue
// pushes it over, the oldest events are evicted and a warning is logged;
// the caller's Enqueue still succeeds.
//
// Maintainer schedules expiry pruning and value log GC:
//
//	m := queue.NewMaintainer(offlineQueue, store, 6*time.Hour)
//	m.OnCleaned(func(int) { syncer.RefreshQueueSize(ctx) })
//	_ = m.Start(ctx)
//	defer m.Stop()
package queue
