// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package api serves the kiosk agent's local HTTP surface.

The kiosk UI talks to the agent over loopback: badge scans are posted as
check-ins, the current sync state is polled or streamed over a websocket,
and operators can inspect or clear the queue.

Routes (all under /api/v1 unless noted):

	POST   /checkins          enqueue a scan            201 {id}
	GET    /queue             list queued check-ins     ?serial= filters
	GET    /queue/size        queued count
	DELETE /queue             drop every queued check-in
	POST   /queue/cleanup     prune expired check-ins
	POST   /sync              run a sync now, returns the status
	GET    /sync/status       current sync status
	GET    /ws                websocket stream of sync_status and checkin_queued
	GET    /health/live       liveness
	GET    /health/ready      readiness (queue store answers)
	GET    /metrics           Prometheus exposition (root path)

Every JSON response uses the same envelope:

	{"status":"success","data":...,"metadata":{"timestamp":"..."}}
	{"status":"error","data":null,"metadata":{...},"error":{"code":"...","message":"..."}}

Middleware, applied globally in order: request id with logging context,
real IP, panic recovery, CORS (go-chi/cors). The /api/v1 routes are rate
limited per client IP with go-chi/httprate and counted in
kiosk_api_requests_total and kiosk_api_request_duration_seconds, labeled by
route pattern.

Usage:

	handler := api.NewHandler(offlineQueue, syncer, hub, api.HandlerConfig{
	    KioskID:     cfg.Kiosk.ID,
	    CORSOrigins: cfg.Server.CORSOrigins,
	})
	router := api.NewRouter(handler, api.NewChiMiddlewareFromServer(cfg.Server))
	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: router.Setup()}
*/
package api
