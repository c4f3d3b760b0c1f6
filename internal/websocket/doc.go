// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package websocket pushes sync state to the kiosk UI.

The kiosk front end keeps a socket open to the local agent and renders
the queue badge and the sync indicator from the messages it receives. It
never sends commands over the socket; everything it can do goes through
the HTTP API.

Key Components:

  - Hub: tracks connected clients and fans messages out to them
  - Client: one connection with a read pump (pings) and a write pump
  - Message: {"type": ..., "data": ...} envelope

Message Types:

  - sync_status: a sync.Status snapshot, sent on every change and as the
    first message after connecting
  - checkin_queued: {"id", "queueSize"} after a scan was written
  - ping / pong: application level keepalive

Broadcasts never block the caller. A client whose buffer is full is dropped
and is expected to reconnect.

Usage:

	hub := websocket.NewHub()
	hub.SetSnapshot(func() (websocket.Message, bool) {
	    return websocket.Message{Type: websocket.MessageTypeSyncStatus, Data: syncer.Status()}, true
	})
	go hub.RunWithContext(ctx)
	syncer.Subscribe(func(st sync.Status) { hub.BroadcastSyncStatus(st) })
*/
package websocket
