// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout bounds the queue probe of a readiness check.
const readinessTimeout = 2 * time.Second

// HealthLive reports that the process is up, whatever its dependencies say.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady reports ready once the queue store answers. Backend
// reachability is reported but never makes the agent unready: accepting
// scans offline is the agent's job.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	size, err := h.queue.GetQueueSize(ctx)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, &APIResponse{
			Status: "error",
			Data: map[string]any{
				"ready": false,
				"queue": "unavailable",
			},
			Metadata: Metadata{Timestamp: time.Now()},
			Error: &APIError{
				Code:    "NOT_READY",
				Message: "Queue store is unavailable",
			},
		})
		return
	}

	data := map[string]any{
		"ready":     true,
		"queue":     "ok",
		"queueSize": size,
		"kioskId":   h.config.KioskID,
	}
	if h.sync != nil {
		st := h.sync.Status()
		data["syncState"] = st.State
		data["isOnline"] = st.IsOnline
		data["isBackendReachable"] = st.IsBackendReachable
	}
	respondData(w, http.StatusOK, data)
}
