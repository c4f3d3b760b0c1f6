// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/sentinel/internal/logging"
)

// EventSource says what produced a Reachability update.
type EventSource string

const (
	// SourceLinkUp follows a link-up transition and the probe it triggered.
	SourceLinkUp EventSource = "link_up"

	// SourceLinkDown follows a link-down transition. No probe is made.
	SourceLinkDown EventSource = "link_down"

	// SourceProbe follows a periodic or on-demand health probe.
	SourceProbe EventSource = "probe"
)

// Reachability is the monitor's current view of the network.
type Reachability struct {
	Online    bool        `json:"isOnline"`
	Reachable bool        `json:"isBackendReachable"`
	Source    EventSource `json:"source,omitempty"`
}

// ReachabilityMonitor tells the Syncer when the backend can be reached.
type ReachabilityMonitor interface {
	// Subscribe registers fn for every update and returns a function that
	// removes it.
	Subscribe(fn func(Reachability)) (unsubscribe func())

	// ProbeNow runs a health probe and reports whether it succeeded.
	ProbeNow(ctx context.Context) bool

	// Current returns the last known state without probing.
	Current() Reachability
}

// Monitor combines link events with periodic backend health probes.
type Monitor struct {
	client   Client
	link     LinkWatcher
	interval time.Duration

	mu     sync.RWMutex
	state  Reachability
	subs   map[int]func(Reachability)
	nextID int

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor. A nil link is treated as always online.
func NewMonitor(client Client, link LinkWatcher, probeInterval time.Duration) *Monitor {
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}
	return &Monitor{
		client:   client,
		link:     link,
		interval: probeInterval,
		state:    Reachability{Online: true},
		subs:     make(map[int]func(Reachability)),
	}
}

// Start runs the link watcher and the probe loop until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return fmt.Errorf("network monitor is already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	if m.link != nil {
		m.mu.Lock()
		m.state.Online = m.link.Online()
		m.mu.Unlock()

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.link.Watch(ctx, func(online bool) { m.onLinkChange(ctx, online) })
		}()
	}

	m.wg.Add(1)
	go m.probeLoop(ctx)

	logging.Info().Dur("probe_interval", m.interval).Msg("Network monitor started")
	return nil
}

// Stop cancels the probe loop and the link watcher and waits for them.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.runMu.Unlock()

	m.wg.Wait()
	logging.Info().Msg("Network monitor stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (m *Monitor) IsRunning() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

// Subscribe implements ReachabilityMonitor.
func (m *Monitor) Subscribe(fn func(Reachability)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// ProbeNow implements ReachabilityMonitor.
func (m *Monitor) ProbeNow(ctx context.Context) bool {
	reachable := m.probe(ctx)
	m.publish(SourceProbe)
	return reachable
}

// Current implements ReachabilityMonitor.
func (m *Monitor) Current() Reachability {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// An initial probe so reachability is known before the first tick.
	m.ProbeNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeNow(ctx)
		}
	}
}

func (m *Monitor) onLinkChange(ctx context.Context, online bool) {
	if !online {
		m.mu.Lock()
		m.state.Online = false
		m.state.Reachable = false
		m.mu.Unlock()
		UpdateBackendReachable(false)
		logging.Warn().Msg("Network link down")
		m.publish(SourceLinkDown)
		return
	}

	m.mu.Lock()
	m.state.Online = true
	m.mu.Unlock()
	logging.Info().Msg("Network link up, probing backend")
	m.probe(ctx)
	m.publish(SourceLinkUp)
}

func (m *Monitor) probe(ctx context.Context) bool {
	err := m.client.Health(ctx)
	if ctx.Err() != nil {
		// Shutting down; keep the last known state.
		return m.Current().Reachable
	}
	reachable := err == nil

	m.mu.Lock()
	changed := m.state.Reachable != reachable
	m.state.Reachable = reachable
	if reachable {
		m.state.Online = true
	}
	m.mu.Unlock()

	UpdateBackendReachable(reachable)
	if changed {
		if reachable {
			logging.Info().Msg("Backend reachable")
		} else {
			logging.Warn().Err(err).Msg("Backend unreachable")
		}
	}
	return reachable
}

func (m *Monitor) publish(source EventSource) {
	m.mu.RLock()
	state := m.state
	state.Source = source
	subs := make([]func(Reachability), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		fn(state)
	}
}

var _ ReachabilityMonitor = (*Monitor)(nil)
