// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/queue"
	syncpkg "github.com/tomtom215/sentinel/internal/sync"
	ws "github.com/tomtom215/sentinel/internal/websocket"
)

// CheckinQueue is the part of offline.Queue the handlers use.
type CheckinQueue interface {
	AddToQueue(ctx context.Context, serialNumber, kioskID string) (string, error)
	GetQueuedCheckins(ctx context.Context) ([]*queue.Event, error)
	FindBySerial(ctx context.Context, serialNumber string) ([]*queue.Event, error)
	GetQueueSize(ctx context.Context) (int, error)
	ClearQueue(ctx context.Context) error
	CleanExpired(ctx context.Context) (int, error)
}

// SyncController is the part of sync.Syncer the handlers use.
type SyncController interface {
	SyncNow(ctx context.Context) syncpkg.Status
	TriggerSync()
	Status() syncpkg.Status
	RefreshQueueSize(ctx context.Context)
}

// HandlerConfig holds the handler settings that come from configuration.
type HandlerConfig struct {
	KioskID     string
	CORSOrigins []string
}

// Handler serves the local API.
//
// Handler methods are split across files:
//   - handlers_checkins.go: check-in intake
//   - handlers_queue.go: queue inspection and maintenance
//   - handlers_sync.go: sync trigger, status and websocket stream
//   - handlers_health.go: liveness and readiness
type Handler struct {
	queue     CheckinQueue
	sync      SyncController
	wsHub     *ws.Hub
	config    HandlerConfig
	startTime time.Time
}

// NewHandler creates the API handler. hub may be nil, in which case the
// websocket endpoint answers 503 and enqueues are not broadcast.
func NewHandler(q CheckinQueue, syncer SyncController, hub *ws.Hub, cfg HandlerConfig) *Handler {
	return &Handler{
		queue:     q,
		sync:      syncer,
		wsHub:     hub,
		config:    cfg,
		startTime: time.Now(),
	}
}

// getUpgrader returns a websocket upgrader that checks the Origin header
// against the CORS origins.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin on websocket handshakes.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowed := range h.config.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected: origin not allowed")
	return false
}
