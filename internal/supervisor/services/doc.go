// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package services adapts the kiosk agent's long-running components to
suture's Serve(ctx) error model.

  - HTTPServerService: ListenAndServe/Shutdown with a drain timeout.
  - LifecycleService: Start(ctx)/Stop() components, i.e. the queue
    maintainer, the reachability monitor and the syncer.
  - WebSocketHubService: the status hub's RunWithContext.

Every wrapper returns ctx.Err() on a requested shutdown and a wrapped error
when the component fails, so suture restarts it with backoff.
*/
package services
