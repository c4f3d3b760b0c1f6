// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/queue"
	"github.com/tomtom215/sentinel/internal/validation"
)

// CheckinRequest is the body of POST /api/v1/checkins.
type CheckinRequest struct {
	SerialNumber string `json:"serialNumber" validate:"required,max=128,badge_serial"`
}

// CheckinResponse is returned for an accepted scan.
type CheckinResponse struct {
	ID string `json:"id"`
}

// CreateCheckin queues one badge scan. The scan is durable once 201 is
// returned; delivery to the backend happens later.
func (h *Handler) CreateCheckin(w http.ResponseWriter, r *http.Request) {
	var req CheckinRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)

	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	ctx := r.Context()
	id, err := h.queue.AddToQueue(ctx, req.SerialNumber, h.config.KioskID)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrInvalidEvent):
			respondError(w, http.StatusBadRequest, "INVALID_CHECKIN", err.Error(), nil)
		case errors.Is(err, queue.ErrStoreClosed):
			respondError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Queue is shutting down", err)
		default:
			respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "Failed to queue check-in", err)
		}
		return
	}

	logging.Ctx(ctx).Info().Str("id", id).Msg("Check-in queued")

	if h.wsHub != nil {
		if size, err := h.queue.GetQueueSize(ctx); err == nil {
			h.wsHub.BroadcastCheckinQueued(id, size)
		}
	}
	if h.sync != nil {
		h.sync.RefreshQueueSize(ctx)
		h.sync.TriggerSync()
	}

	respondData(w, http.StatusCreated, CheckinResponse{ID: id})
}
