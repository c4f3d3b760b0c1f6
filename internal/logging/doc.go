// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package logging provides the zerolog-based structured logger shared by the
// kiosk agent.
//
// A single global logger is configured once from main:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Int("queue_size", n).Msg("Offline queue initialized")
//	logging.Warn().Int("evicted", k).Msg("Queue over capacity, oldest check-ins evicted")
//
// Every sync run carries a short correlation id so the lines of one run can
// be grepped together:
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	logging.Ctx(ctx).Debug().Int("batch", 1).Msg("Uploading batch")
//
// SlogHandler bridges log/slog to zerolog for sutureslog.
//
// Always terminate an event with Msg or Send, otherwise nothing is written.
package logging
