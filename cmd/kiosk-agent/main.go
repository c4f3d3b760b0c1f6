// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package main is the entry point of the kiosk agent.
//
// The agent runs next to the kiosk UI on each badge terminal. Every scan is
// written to a durable local queue first and delivered to the backend in
// ordered batches whenever the backend is reachable, so check-ins survive
// network outages, backend downtime and power loss.
//
// # Startup
//
//  1. Configuration: Koanf v2 (defaults, config.yaml, environment)
//  2. Logging: zerolog
//  3. Storage: Badger queue directory and SQLite sequence file
//  4. Offline queue facade, restoring the sequence and pruning expired scans
//  5. Backend client, reachability monitor and syncer
//  6. Websocket hub and local HTTP API
//  7. Supervisor tree (data, sync and api layers)
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the tree. The HTTP server drains, the syncer
// lets an in-flight batch settle, then the stores are closed.
//
// # Example
//
//	export KIOSK_ID=lobby-east-1
//	export API_URL=https://checkin.example.org/api
//	export KIOSK_API_KEY=...
//	./kiosk-agent
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logging still runs on the built-in defaults here.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("kiosk_id", cfg.Kiosk.ID).
		Str("api_url", cfg.Kiosk.APIURL).
		Str("queue_path", cfg.Queue.Path).
		Str("sequence_path", cfg.Sequence.Path).
		Bool("api_key_set", cfg.Kiosk.APIKey != "").
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Kiosk agent stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Kiosk agent stopped gracefully")
}
