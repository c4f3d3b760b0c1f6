// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/sentinel/internal/api"
	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/offline"
	"github.com/tomtom215/sentinel/internal/queue"
	"github.com/tomtom215/sentinel/internal/sequence"
	"github.com/tomtom215/sentinel/internal/supervisor"
	"github.com/tomtom215/sentinel/internal/supervisor/services"
	syncpkg "github.com/tomtom215/sentinel/internal/sync"
	ws "github.com/tomtom215/sentinel/internal/websocket"
)

// run opens the stores, wires the services into the supervisor tree and
// blocks until ctx is canceled or the tree fails.
func run(ctx context.Context, cfg *config.Config) error {
	store, err := queue.Open(queueConfig(cfg.Queue))
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close queue store")
		}
	}()

	seq, err := sequence.Open(cfg.Sequence.Path, cfg.Sequence.Key)
	if err != nil {
		return fmt.Errorf("open sequence store: %w", err)
	}
	defer func() {
		if err := seq.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close sequence store")
		}
	}()

	offlineQueue := offline.New(store, seq, offline.WithMaxAge(cfg.Queue.MaxAge))
	if err := offlineQueue.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize offline queue: %w", err)
	}

	client := syncpkg.NewHTTPClient(syncpkg.ClientConfig{
		BaseURL:             cfg.Kiosk.APIURL,
		APIKey:              cfg.Kiosk.APIKey,
		APIKeyHeader:        cfg.Kiosk.APIKeyHeader,
		RequestTimeout:      cfg.Sync.RequestTimeout,
		ProbeTimeout:        cfg.Sync.ProbeTimeout,
		MaxBatchesPerSecond: cfg.Sync.MaxBatchesPerSecond,
		BreakerEnabled:      cfg.Sync.BreakerEnabled,
	})
	monitor := syncpkg.NewMonitor(client, syncpkg.NewInterfaceWatcher(cfg.Sync.LinkPollInterval), cfg.Sync.ProbeInterval)
	syncCfg := syncpkg.Config{
		BatchSize:   cfg.Sync.BatchSize,
		RetryDelays: cfg.Sync.RetryDelays,
		StopTimeout: cfg.Sync.RequestTimeout + 5*time.Second,
	}
	syncer := syncpkg.NewSyncer(offlineQueue, client, monitor, syncCfg)

	hub := ws.NewHub()
	hub.SetSnapshot(func() (ws.Message, bool) {
		return ws.Message{Type: ws.MessageTypeSyncStatus, Data: syncer.Status()}, true
	})
	unsubscribe := syncer.Subscribe(func(st syncpkg.Status) {
		hub.BroadcastSyncStatus(st)
	})
	defer unsubscribe()

	maintainer := queue.NewMaintainer(offlineQueue, store, cfg.Queue.CleanupInterval)
	maintainer.OnCleaned(func(int) {
		syncer.RefreshQueueSize(context.Background())
	})

	// The stores close when run returns, so the tree must outwait a batch
	// that is still being acknowledged.
	treeCfg := supervisor.DefaultTreeConfig()
	if minShutdown := syncCfg.StopTimeout + 5*time.Second; treeCfg.ShutdownTimeout < minShutdown {
		treeCfg.ShutdownTimeout = minShutdown
	}
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewLifecycleService(maintainer, "queue-maintainer"))
	tree.AddSyncService(services.NewWebSocketHubService(hub))
	tree.AddSyncService(services.NewLifecycleService(monitor, "reachability-monitor"))
	tree.AddSyncService(services.NewLifecycleService(syncer, "syncer"))

	if cfg.Server.Enabled {
		handler := api.NewHandler(offlineQueue, syncer, hub, api.HandlerConfig{
			KioskID:     cfg.Kiosk.ID,
			CORSOrigins: cfg.Server.CORSOrigins,
		})
		router := api.NewRouter(handler, api.NewChiMiddlewareFromServer(cfg.Server))
		server := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router.Setup(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       cfg.Server.Timeout,
			// Websocket connections manage their own deadlines.
			WriteTimeout: 0,
			IdleTimeout:  2 * time.Minute,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("Local API enabled")
	}

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The channel receives exactly once, when the tree has stopped.
	treeErr := <-errCh
	if errors.Is(treeErr, context.Canceled) {
		treeErr = nil
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	return treeErr
}

func queueConfig(c config.QueueConfig) queue.Config {
	qc := queue.DefaultConfig()
	qc.Path = c.Path
	qc.SyncWrites = c.SyncWrites
	qc.MaxSize = c.MaxSize
	qc.Compression = c.Compression
	qc.GCRatio = c.GCRatio
	qc.CloseTimeout = c.CloseTimeout
	return qc
}
