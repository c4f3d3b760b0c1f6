// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/queue"
)

const syncFlightKey = "sync"

// Queue is the part of the offline queue facade the Syncer drives.
type Queue interface {
	Initialize(ctx context.Context) error
	GetQueueSize(ctx context.Context) (int, error)
	GetQueuedCheckins(ctx context.Context) ([]*queue.Event, error)
	MarkAsSynced(ctx context.Context, ids []string) error
	IncrementRetryCount(ctx context.Context, id string) error
}

// Config holds the Syncer tunables.
type Config struct {
	// BatchSize is the maximum number of check-ins per bulk request.
	BatchSize int

	// RetryDelays is the backoff ladder indexed by consecutive failures.
	// The last entry repeats.
	RetryDelays []time.Duration

	// StopTimeout bounds how long Stop waits for an in-flight run to apply
	// its result. It should exceed the client's request timeout.
	StopTimeout time.Duration
}

// DefaultConfig returns the default Syncer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:   100,
		RetryDelays: []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second, 2 * time.Minute},
		StopTimeout: 30 * time.Second,
	}
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithClock overrides time.Now for LastSyncTime.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// Syncer drains the offline queue to the backend. At most one sync run is
// in flight at any time; concurrent SyncNow callers share it.
type Syncer struct {
	queue   Queue
	client  Client
	monitor ReachabilityMonitor
	cfg     Config
	now     func() time.Time

	flight singleflight.Group

	mu     sync.RWMutex
	status Status

	obsMu     sync.RWMutex
	observers map[int]func(Status)
	nextObsID int

	runMu       sync.Mutex
	running     bool
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	retryTimer  *time.Timer
	wg          sync.WaitGroup

	// inflight is closed when the current singleflight run settles.
	// Guarded by runMu; nil when no run is active.
	inflight chan struct{}
}

// NewSyncer creates a Syncer. Zero values in cfg fall back to DefaultConfig.
func NewSyncer(q Queue, client Client, monitor ReachabilityMonitor, cfg Config, opts ...Option) *Syncer {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = def.RetryDelays
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}

	s := &Syncer{
		queue:     q,
		client:    client,
		monitor:   monitor,
		cfg:       cfg,
		now:       time.Now,
		status:    Status{State: StateIdle},
		observers: make(map[int]func(Status)),
	}
	if monitor != nil {
		cur := monitor.Current()
		s.status.IsOnline = cur.Online
		s.status.IsBackendReachable = cur.Reachable
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the queue, subscribes to reachability changes and kicks
// off an initial sync in the background.
func (s *Syncer) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("syncer is already running")
	}
	if err := s.queue.Initialize(ctx); err != nil {
		s.runMu.Unlock()
		return fmt.Errorf("initialize offline queue: %w", err)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.stopped = false
	if s.monitor != nil {
		s.unsubscribe = s.monitor.Subscribe(s.onReachability)
	}
	s.runMu.Unlock()

	if s.monitor != nil {
		cur := s.monitor.Current()
		s.update(func(st *Status) {
			st.IsOnline = cur.Online
			st.IsBackendReachable = cur.Reachable
		})
	}
	s.RefreshQueueSize(ctx)

	logging.Info().
		Int("batch_size", s.cfg.BatchSize).
		Int("queue_size", s.Status().QueueSize).
		Msg("Syncer started")

	s.goSync()
	return nil
}

// Stop cancels the pending retry and detaches from the monitor. A bulk
// request already in flight completes and its result is applied, but no
// further batch is sent.
func (s *Syncer) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.cancel()
	s.runMu.Unlock()

	s.wg.Wait()
	s.waitInflight()

	s.update(func(st *Status) {
		st.IsSyncing = false
		st.Progress = nil
		if st.State == StateSyncing {
			st.State = StateIdle
		}
	})
	logging.Info().Msg("Syncer stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Syncer) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// SyncNow runs a sync, or joins the one in flight, and returns the status
// once it settles or ctx is done. Failures are recorded in the status and
// never returned.
func (s *Syncer) SyncNow(ctx context.Context) Status {
	ch := s.flight.DoChan(syncFlightKey, func() (any, error) {
		done := s.beginRun()
		defer s.endRun(done)
		s.run(context.WithoutCancel(ctx))
		return nil, nil
	})
	select {
	case <-ch:
	case <-ctx.Done():
	}
	return s.Status()
}

// TriggerSync starts a background sync when the syncer is running and the
// backend is believed reachable.
func (s *Syncer) TriggerSync() {
	if s.monitor != nil && !s.monitor.Current().Reachable {
		return
	}
	s.goSync()
}

// Status returns a snapshot of the sync state.
func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.clone()
}

// Subscribe registers fn for every status change and returns a function
// that removes it. fn must not block.
func (s *Syncer) Subscribe(fn func(Status)) func() {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// RefreshQueueSize re-reads the queue size into the status.
func (s *Syncer) RefreshQueueSize(ctx context.Context) {
	size, err := s.queue.GetQueueSize(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to read queue size")
		return
	}
	s.update(func(st *Status) { st.QueueSize = size })
}

func (s *Syncer) run(ctx context.Context) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	started := time.Now()

	size, err := s.queue.GetQueueSize(ctx)
	if err != nil {
		s.fail(ctx, fmt.Errorf("read queue size: %w", err))
		return
	}
	if size == 0 {
		s.update(func(st *Status) {
			st.State = StateIdle
			st.IsSyncing = false
			st.Progress = nil
			st.QueueSize = 0
		})
		RecordRun("idle", 0)
		return
	}

	s.update(func(st *Status) {
		st.State = StateSyncing
		st.IsSyncing = true
		st.QueueSize = size
		st.Progress = nil
	})

	pending, err := s.queue.GetQueuedCheckins(ctx)
	if err != nil {
		s.fail(ctx, fmt.Errorf("read queued check-ins: %w", err))
		return
	}
	batches := splitBatches(pending, s.cfg.BatchSize)

	logging.Ctx(ctx).Info().
		Int("pending", len(pending)).
		Int("batches", len(batches)).
		Msg("Sync started")

	for i, batch := range batches {
		if s.isStopped() {
			logging.Ctx(ctx).Info().Int("batch", i+1).Msg("Syncer stopped, remaining batches left queued")
			s.update(func(st *Status) {
				st.State = StateIdle
				st.IsSyncing = false
				st.Progress = nil
			})
			s.RefreshQueueSize(ctx)
			RecordRun("stopped", 0)
			return
		}

		current := i + 1
		s.update(func(st *Status) {
			st.Progress = &Progress{Current: current, Total: len(batches)}
		})

		if err := s.syncBatch(ctx, batch, current, len(batches)); err != nil {
			s.fail(ctx, err)
			return
		}
	}

	s.succeed(ctx, started)
}

func (s *Syncer) syncBatch(ctx context.Context, batch []*queue.Event, current, total int) error {
	resp, err := s.client.BulkUpload(ctx, batch)
	if err != nil {
		RecordBatch(errorKind(err))
		return err
	}
	if !resp.Success {
		RecordBatch("rejected")
		failed := resp.Failed
		if failed == 0 {
			failed = len(resp.Errors)
		}
		return &OverallFailureError{Failed: failed}
	}

	synced, rejected := reconcile(batch, resp)
	if err := s.queue.MarkAsSynced(ctx, synced); err != nil {
		RecordBatch("error")
		return fmt.Errorf("remove synced check-ins: %w", err)
	}
	for _, id := range rejected {
		if err := s.queue.IncrementRetryCount(ctx, id); err != nil {
			// Evicted or cleared since the batch was read.
			logging.Ctx(ctx).Warn().Err(err).Str("id", id).Msg("Failed to record retry for rejected check-in")
		}
	}

	RecordBatch("success")
	RecordItems(len(synced), len(rejected))
	s.RefreshQueueSize(ctx)

	logging.Ctx(ctx).Debug().
		Int("batch", current).
		Int("batches", total).
		Int("synced", len(synced)).
		Int("rejected", len(rejected)).
		Msg("Batch synced")
	return nil
}

func (s *Syncer) succeed(ctx context.Context, started time.Time) {
	now := s.now()
	s.update(func(st *Status) {
		st.State = StateIdle
		st.IsSyncing = false
		st.Progress = nil
		st.LastSyncError = ""
		st.LastSyncTime = &now
		st.ConsecutiveFailures = 0
	})
	s.cancelRetry()
	UpdateConsecutiveFailures(0)
	s.RefreshQueueSize(ctx)

	elapsed := time.Since(started)
	RecordRun("success", elapsed.Seconds())
	logging.Ctx(ctx).Info().
		Dur("duration", elapsed).
		Int("queue_size", s.Status().QueueSize).
		Msg("Sync completed")
}

func (s *Syncer) fail(ctx context.Context, err error) {
	msg := err.Error()
	if errors.Is(err, ErrAuthentication) {
		msg = ErrAuthentication.Error()
	}

	var failures int
	s.update(func(st *Status) {
		st.State = StateError
		st.IsSyncing = false
		st.Progress = nil
		st.LastSyncError = msg
		st.ConsecutiveFailures++
		failures = st.ConsecutiveFailures
	})
	UpdateConsecutiveFailures(failures)
	RecordRun(errorKind(err), 0)

	event := logging.Ctx(ctx).Warn()
	if errors.Is(err, ErrAuthentication) {
		event = logging.Ctx(ctx).Error()
	}
	event.Err(err).Int("consecutive_failures", failures).Msg("Sync failed")

	s.RefreshQueueSize(ctx)
	s.scheduleRetry(failures)
}

// retryDelay returns the backoff for the given failure streak (1-based).
func (s *Syncer) retryDelay(failures int) time.Duration {
	idx := failures - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.cfg.RetryDelays) {
		idx = len(s.cfg.RetryDelays) - 1
	}
	return s.cfg.RetryDelays[idx]
}

func (s *Syncer) scheduleRetry(failures int) {
	delay := s.retryDelay(failures)

	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(delay, s.fireRetry)

	logging.Info().Dur("delay", delay).Int("consecutive_failures", failures).Msg("Sync retry scheduled")
}

func (s *Syncer) fireRetry() {
	s.runMu.Lock()
	s.retryTimer = nil
	running := s.running
	s.runMu.Unlock()

	if !running {
		return
	}
	if s.monitor != nil && !s.monitor.Current().Reachable {
		logging.Debug().Msg("Skipping sync retry, backend unreachable")
		return
	}
	s.goSync()
}

func (s *Syncer) cancelRetry() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// goSync runs SyncNow in a tracked goroutine while the syncer is running.
func (s *Syncer) goSync() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.runMu.Unlock()

	go func() {
		defer s.wg.Done()
		s.SyncNow(ctx)
	}()
}

func (s *Syncer) beginRun() chan struct{} {
	done := make(chan struct{})
	s.runMu.Lock()
	s.inflight = done
	s.runMu.Unlock()
	return done
}

func (s *Syncer) endRun(done chan struct{}) {
	s.runMu.Lock()
	if s.inflight == done {
		s.inflight = nil
	}
	s.runMu.Unlock()
	close(done)
}

// waitInflight blocks until a run that outlived its caller has applied its
// result, so the queue store can be closed right after Stop returns. Runs
// starting after Stop send no batches.
func (s *Syncer) waitInflight() {
	s.runMu.Lock()
	done := s.inflight
	s.runMu.Unlock()
	if done == nil {
		return
	}

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logging.Warn().
			Dur("timeout", s.cfg.StopTimeout).
			Msg("In-flight sync did not settle before stop timeout")
	}
}

func (s *Syncer) isStopped() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.stopped
}

func (s *Syncer) onReachability(r Reachability) {
	s.update(func(st *Status) {
		st.IsOnline = r.Online
		st.IsBackendReachable = r.Reachable
	})

	if !r.Reachable {
		return
	}
	st := s.Status()
	switch r.Source {
	case SourceLinkUp:
		if !st.IsSyncing {
			s.goSync()
		}
	case SourceProbe:
		if st.State == StateError {
			s.goSync()
		}
	}
}

func (s *Syncer) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	snapshot := s.status.clone()
	s.mu.Unlock()

	s.obsMu.RLock()
	observers := make([]func(Status), 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	s.obsMu.RUnlock()

	for _, obs := range observers {
		obs(snapshot)
	}
}

// splitBatches cuts events into consecutive chunks of at most size.
func splitBatches(events []*queue.Event, size int) [][]*queue.Event {
	if len(events) == 0 {
		return nil
	}
	batches := make([][]*queue.Event, 0, (len(events)+size-1)/size)
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		batches = append(batches, events[start:end])
	}
	return batches
}

// reconcile splits a batch into ids to remove and ids the backend rejected.
// Rejections are matched by id, or by serial number and timestamp for
// backends that only return per-item results.
func reconcile(batch []*queue.Event, resp *BulkResponse) (synced, rejected []string) {
	failed := make(map[string]bool, len(resp.Errors))
	for _, e := range resp.Errors {
		if e.ID != "" {
			failed[e.ID] = true
		}
	}

	type resultKey struct {
		serial string
		millis int64
	}
	badResults := make(map[resultKey]bool)
	badSerials := make(map[string]bool)
	for _, r := range resp.Results {
		if r.Success {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			// Unparseable timestamp: keep every item with that serial.
			badSerials[r.SerialNumber] = true
			continue
		}
		badResults[resultKey{r.SerialNumber, ts.UnixMilli()}] = true
	}

	synced = make([]string, 0, len(batch))
	for _, ev := range batch {
		if failed[ev.ID] ||
			badSerials[ev.SerialNumber] ||
			badResults[resultKey{ev.SerialNumber, ev.Timestamp.UnixMilli()}] {
			rejected = append(rejected, ev.ID)
			continue
		}
		synced = append(synced, ev.ID)
	}
	return synced, rejected
}
