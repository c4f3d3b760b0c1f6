// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"net/http"
	"strings"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/queue"
)

// QueueListResponse is returned by GET /api/v1/queue.
type QueueListResponse struct {
	Checkins []*queue.Event `json:"checkins"`
	Count    int            `json:"count"`
}

// QueueSizeResponse is returned by GET /api/v1/queue/size.
type QueueSizeResponse struct {
	Size int `json:"size"`
}

// CleanupResponse is returned by POST /api/v1/queue/cleanup.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// ListQueue returns the queued check-ins in store order. ?serial= narrows
// the list to one badge.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	var (
		events []*queue.Event
		err    error
	)
	if serial := strings.TrimSpace(r.URL.Query().Get("serial")); serial != "" {
		events, err = h.queue.FindBySerial(r.Context(), serial)
	} else {
		events, err = h.queue.GetQueuedCheckins(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "Failed to read queue", err)
		return
	}
	if events == nil {
		events = []*queue.Event{}
	}

	respondData(w, http.StatusOK, QueueListResponse{Checkins: events, Count: len(events)})
}

// QueueSize returns the number of queued check-ins.
func (h *Handler) QueueSize(w http.ResponseWriter, r *http.Request) {
	size, err := h.queue.GetQueueSize(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "Failed to read queue size", err)
		return
	}
	respondData(w, http.StatusOK, QueueSizeResponse{Size: size})
}

// ClearQueue drops every queued check-in. The sequence counter is kept.
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.queue.ClearQueue(ctx); err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "Failed to clear queue", err)
		return
	}
	logging.Ctx(ctx).Warn().Msg("Queue cleared through API")

	if h.sync != nil {
		h.sync.RefreshQueueSize(ctx)
	}
	respondData(w, http.StatusOK, QueueSizeResponse{Size: 0})
}

// CleanupQueue prunes check-ins older than the maximum age.
func (h *Handler) CleanupQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.queue.CleanExpired(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "Failed to clean queue", err)
		return
	}

	if h.sync != nil && removed > 0 {
		h.sync.RefreshQueueSize(ctx)
	}
	respondData(w, http.StatusOK, CleanupResponse{Removed: removed})
}
