// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/sentinel/internal/logging"
)

// circuitBreaker guards bulk uploads. The breaker uses wall time for its
// interval and open timeout; tests exercise it through failure counts only.
type circuitBreaker struct {
	cb   *gobreaker.CircuitBreaker[*BulkResponse]
	name string
}

// newCircuitBreaker opens after a 60% failure rate over at least 10 requests
// within a minute, then waits 2 minutes before letting 3 trial requests in.
func newCircuitBreaker(name string) *circuitBreaker {
	circuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*BulkResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("Opening circuit breaker")
				return true
			}
			return false
		},

		// A rejected key or a canceled run says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrAuthentication) ||
				errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state transition")
			circuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			circuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &circuitBreaker{cb: cb, name: name}
}

func (b *circuitBreaker) execute(fn func() (*BulkResponse, error)) (*BulkResponse, error) {
	resp, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			circuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, &NetworkError{Code: CodeCircuitOpen, Err: err}
		}
		circuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
	circuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return resp, nil
}

func (b *circuitBreaker) state() string {
	return stateToString(b.cb.State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
