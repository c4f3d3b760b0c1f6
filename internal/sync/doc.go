// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package sync delivers queued check-ins to the backend.

Key Components:

  - Syncer: single-flight batch uploader with a retry ladder
  - Monitor: link events plus periodic GET /health probes
  - HTTPClient: JSON transport with API key auth and a circuit breaker
  - InterfaceWatcher, ManualLinkWatcher: link state sources

Sync Run:

A run reads the queue size and returns immediately when it is zero.
Otherwise the pending check-ins are read in store order and uploaded in
batches of Config.BatchSize, strictly one after another:

 1. POST {api}/checkins/bulk with the batch
 2. 2xx with success=true: remove every id the backend did not report
    as failed; failed ids stay queued with their retry count bumped
 3. 2xx with success=false: OverallFailureError, nothing removed
 4. 401/403: ErrAuthentication; any other failure: NetworkError

The first error stops the run, moves the status to "error" and schedules a
retry from the RetryDelays ladder. The retry only fires while the syncer is
running and the backend is believed reachable.

Triggers:

  - Syncer.Start (initial run)
  - link up followed by a successful probe
  - a successful periodic probe while the status is "error"
  - the retry timer
  - Syncer.SyncNow / TriggerSync from the local API

Concurrent triggers share one run through golang.org/x/sync/singleflight.

Usage:

	client := sync.NewHTTPClient(sync.ClientConfig{BaseURL: url, APIKey: key})
	monitor := sync.NewMonitor(client, sync.NewInterfaceWatcher(5*time.Second), 30*time.Second)
	syncer := sync.NewSyncer(offlineQueue, client, monitor, sync.DefaultConfig())
	_ = monitor.Start(ctx)
	defer monitor.Stop()
	if err := syncer.Start(ctx); err != nil {
	    return err
	}
	defer syncer.Stop()
*/
package sync
