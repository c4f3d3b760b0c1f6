// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import "time"

// State is the orchestrator's coarse state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Progress is the batch position of a running sync. Current is 1-based.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Status is a snapshot of everything the kiosk UI shows about syncing.
type Status struct {
	State               State      `json:"state"`
	IsSyncing           bool       `json:"isSyncing"`
	QueueSize           int        `json:"queueSize"`
	LastSyncError       string     `json:"lastSyncError,omitempty"`
	LastSyncTime        *time.Time `json:"lastSyncTime,omitempty"`
	Progress            *Progress  `json:"syncProgress,omitempty"`
	IsOnline            bool       `json:"isOnline"`
	IsBackendReachable  bool       `json:"isBackendReachable"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
}

// clone returns a copy that shares no pointers with s.
func (s Status) clone() Status {
	out := s
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	if s.Progress != nil {
		p := *s.Progress
		out.Progress = &p
	}
	return out
}
