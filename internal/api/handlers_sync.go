// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"net/http"

	"github.com/tomtom215/sentinel/internal/logging"
	ws "github.com/tomtom215/sentinel/internal/websocket"
)

// TriggerSync runs a sync and returns the resulting status. A sync already
// in flight is joined, not restarted. The run continues if the caller
// disconnects; the response then carries the status at that moment.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	status := h.sync.SyncNow(r.Context())
	respondData(w, http.StatusOK, status)
}

// SyncStatus returns the current sync status.
func (h *Handler) SyncStatus(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, h.sync.Status())
}

// WebSocket upgrades the connection and streams hub messages to it.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	select {
	case h.wsHub.Register <- client:
		client.Start()
	case <-h.wsHub.Done():
		_ = conn.Close()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}
