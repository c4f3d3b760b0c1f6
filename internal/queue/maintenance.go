// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/sentinel/internal/logging"
)

// Cleaner purges expired events. The offline facade implements it so the
// age cutoff is computed in one place.
type Cleaner interface {
	CleanExpired(ctx context.Context) (int, error)
}

// GarbageCollector reclaims disk space after deletions.
type GarbageCollector interface {
	RunGC() error
}

// Maintainer runs expiry pruning and value log GC on a fixed interval.
// Startup pruning is done by the facade's Initialize, so the first tick is
// one interval after Start.
type Maintainer struct {
	cleaner  Cleaner
	gc       GarbageCollector
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	running     bool
	lastRun     time.Time
	lastRemoved int
	hooks       []func(removed int)
}

// NewMaintainer creates a maintainer. gc may be nil.
func NewMaintainer(cleaner Cleaner, gc GarbageCollector, interval time.Duration) *Maintainer {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Maintainer{cleaner: cleaner, gc: gc, interval: interval}
}

// OnCleaned registers fn to run after every maintenance pass, whether or
// not anything was removed.
func (m *Maintainer) OnCleaned(fn func(removed int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Start begins the background loop.
func (m *Maintainer) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()

	logging.Info().Dur("interval", m.interval).Msg("Queue maintainer started")
	return nil
}

// Stop cancels the loop and waits for an in-progress pass to finish.
func (m *Maintainer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info().Msg("Queue maintainer stopped")
}

// IsRunning reports whether the loop is active.
func (m *Maintainer) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Maintainer) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunNow(m.ctx); err != nil {
				logging.Error().Err(err).Msg("Queue maintenance failed")
			}
		}
	}
}

// RunNow performs one pass immediately and returns the number of expired
// events removed.
func (m *Maintainer) RunNow(ctx context.Context) (int, error) {
	removed, err := m.cleaner.CleanExpired(ctx)
	if err != nil {
		return 0, err
	}

	if m.gc != nil {
		if gcErr := m.gc.RunGC(); gcErr != nil {
			logging.Warn().Err(gcErr).Msg("Queue value log GC failed")
		}
		if st, ok := m.gc.(interface{ Stats() Stats }); ok {
			s := st.Stats()
			UpdateDBSize(s.LSMBytes, s.VLogBytes)
		}
	}
	RecordMaintenanceRun()

	m.mu.Lock()
	m.lastRun = time.Now()
	m.lastRemoved = removed
	hooks := append([]func(int){}, m.hooks...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(removed)
	}

	logging.Debug().Int("expired", removed).Msg("Queue maintenance complete")
	return removed, nil
}

// LastRun returns when the last pass finished and how many events it removed.
func (m *Maintainer) LastRun() (time.Time, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.lastRemoved
}
