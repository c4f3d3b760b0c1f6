// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package supervisor runs the kiosk agent's long-lived services under a
suture v4 tree.

	kiosk-agent
	├── data-layer
	│   └── queue-maintainer      (queue.Maintainer)
	├── sync-layer
	│   ├── reachability-monitor  (sync.Monitor)
	│   ├── syncer                (sync.Syncer)
	│   └── websocket-hub         (websocket.Hub)
	└── api-layer
	    └── http-server           (local API)

Crashed services are restarted with suture's backoff; failures are counted
per layer. Supervisor events are logged through sutureslog into the zerolog
stream via logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewLifecycleService(maintainer, "queue-maintainer"))
	tree.AddSyncService(services.NewLifecycleService(monitor, "reachability-monitor"))
	tree.AddSyncService(services.NewLifecycleService(syncer, "syncer"))
	tree.AddSyncService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
*/
package supervisor
