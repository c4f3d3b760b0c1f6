// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import (
	"errors"
	"fmt"
)

// ErrAuthentication is returned when the backend rejects the kiosk API key
// (HTTP 401 or 403). It is terminal for the current sync run.
var ErrAuthentication = errors.New("Authentication failed — cannot sync") //nolint:staticcheck // user facing message

// NetworkError is a transport level failure: a non-2xx status, a timeout, an
// unreachable host or an open circuit breaker.
type NetworkError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Code names the failure when there was no response
	// (timeout, connection, circuit_open, decode).
	Code string

	Err error
}

func (e *NetworkError) Error() string {
	detail := e.Code
	if e.StatusCode != 0 {
		detail = fmt.Sprintf("%d", e.StatusCode)
	}
	if detail == "" {
		detail = "unknown"
	}
	if e.Err != nil {
		return fmt.Sprintf("Network error: %s: %v", detail, e.Err)
	}
	return "Network error: " + detail
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// OverallFailureError is returned when the backend answers a bulk request
// with success=false. Nothing from that batch is removed.
type OverallFailureError struct {
	Failed int
}

func (e *OverallFailureError) Error() string {
	return fmt.Sprintf("Sync failed: %d items failed", e.Failed)
}

// Error codes used in NetworkError.Code.
const (
	CodeTimeout     = "timeout"
	CodeConnection  = "connection"
	CodeCircuitOpen = "circuit_open"
	CodeDecode      = "decode"
	CodeCanceled    = "canceled"
)

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// errorKind buckets err for metrics labels.
func errorKind(err error) string {
	var netErr *NetworkError
	var overall *OverallFailureError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAuthentication):
		return "auth"
	case errors.As(err, &overall):
		return "rejected"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "error"
	}
}
