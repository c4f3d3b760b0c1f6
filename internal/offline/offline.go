// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package offline is the check-in facing side of the durable queue. It
// stamps each scan with an id, a sequence number and timestamps before
// handing it to the store, and owns the age cutoff used for expiry.
package offline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/queue"
	"github.com/tomtom215/sentinel/internal/sequence"
)

// DefaultMaxAge is how long an undelivered check-in is kept.
const DefaultMaxAge = 7 * 24 * time.Hour

// restorer is implemented by generators that load persisted state lazily.
type restorer interface {
	Restore(ctx context.Context) (int64, error)
}

// Queue wraps a queue.Store and a sequence.Generator.
type Queue struct {
	store  queue.Store
	seq    sequence.Generator
	maxAge time.Duration
	now    func() time.Time
	newID  func() string

	initMu      sync.Mutex
	initialized bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.maxAge = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithIDGenerator overrides the UUID v4 id source.
func WithIDGenerator(fn func() string) Option {
	return func(q *Queue) {
		if fn != nil {
			q.newID = fn
		}
	}
}

// New creates a facade over store and seq.
func New(store queue.Store, seq sequence.Generator, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		seq:    seq,
		maxAge: DefaultMaxAge,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Initialize restores the sequence counter and purges expired check-ins.
// Only the first successful call does any work.
func (q *Queue) Initialize(ctx context.Context) error {
	q.initMu.Lock()
	defer q.initMu.Unlock()
	if q.initialized {
		return nil
	}

	var restored int64
	if r, ok := q.seq.(restorer); ok {
		v, err := r.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore sequence counter: %w", err)
		}
		restored = v
	}

	expired, err := q.cleanExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge expired check-ins: %w", err)
	}

	size, err := q.store.Size(ctx)
	if err != nil {
		return fmt.Errorf("count queued check-ins: %w", err)
	}

	q.initialized = true
	logging.Info().
		Int("queue_size", size).
		Int("expired", expired).
		Int64("sequence", restored).
		Msg("Offline queue initialized")
	return nil
}

// AddToQueue records one scan and returns its id.
func (q *Queue) AddToQueue(ctx context.Context, serialNumber, kioskID string) (string, error) {
	if err := q.Initialize(ctx); err != nil {
		return "", err
	}

	serialNumber = strings.TrimSpace(serialNumber)
	if serialNumber == "" {
		return "", fmt.Errorf("%w: serial number is required", queue.ErrInvalidEvent)
	}

	seqNum, err := q.seq.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("allocate sequence number: %w", err)
	}

	now := q.now()
	ev := &queue.Event{
		ID:             q.newID(),
		SerialNumber:   serialNumber,
		KioskID:        kioskID,
		Timestamp:      now,
		LocalTimestamp: now.UnixMilli(),
		SequenceNumber: seqNum,
		RetryCount:     0,
		CreatedAt:      now,
	}
	if err := q.store.Enqueue(ctx, ev); err != nil {
		return "", err
	}

	logging.Ctx(ctx).Debug().
		Str("id", ev.ID).
		Str("kiosk_id", kioskID).
		Int64("sequence", seqNum).
		Msg("Check-in queued")
	return ev.ID, nil
}

// GetQueuedCheckins returns every queued check-in, oldest first.
func (q *Queue) GetQueuedCheckins(ctx context.Context) ([]*queue.Event, error) {
	return q.store.GetAll(ctx)
}

// MarkAsSynced removes delivered check-ins. Unknown ids are ignored.
func (q *Queue) MarkAsSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.store.RemoveBatch(ctx, ids)
	return err
}

// GetQueueSize returns the number of queued check-ins.
func (q *Queue) GetQueueSize(ctx context.Context) (int, error) {
	return q.store.Size(ctx)
}

// IncrementRetryCount bumps the retry counter of one check-in.
func (q *Queue) IncrementRetryCount(ctx context.Context, id string) error {
	return q.store.IncrementRetry(ctx, id)
}

// ClearQueue drops every queued check-in. The sequence counter is untouched.
func (q *Queue) ClearQueue(ctx context.Context) error {
	if err := q.store.Clear(ctx); err != nil {
		return err
	}
	logging.Warn().Msg("Offline queue cleared")
	return nil
}

// FindBySerial returns the queued check-ins for one badge.
func (q *Queue) FindBySerial(ctx context.Context, serialNumber string) ([]*queue.Event, error) {
	return q.store.FindBySerial(ctx, strings.TrimSpace(serialNumber))
}

// CleanExpired removes check-ins older than the configured max age and
// returns how many were removed. It satisfies queue.Cleaner.
func (q *Queue) CleanExpired(ctx context.Context) (int, error) {
	return q.cleanExpired(ctx)
}

func (q *Queue) cleanExpired(ctx context.Context) (int, error) {
	return q.store.PruneExpired(ctx, q.now().Add(-q.maxAge))
}

// MaxAge returns the expiry window.
func (q *Queue) MaxAge() time.Duration {
	return q.maxAge
}

var _ queue.Cleaner = (*Queue)(nil)
