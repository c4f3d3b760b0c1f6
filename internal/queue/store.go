// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/logging"
)

// Store is the durable queue contract used by the offline facade.
type Store interface {
	// Enqueue inserts e. It fails with ErrDuplicateID if the id is queued
	// already, and evicts the oldest events if the store grows past MaxSize.
	Enqueue(ctx context.Context, e *Event) error

	// Dequeue removes and returns the oldest event, or nil when empty.
	Dequeue(ctx context.Context) (*Event, error)

	// Peek returns the oldest event without removing it, or nil when empty.
	Peek(ctx context.Context) (*Event, error)

	// Remove deletes the event with the given id. Absent ids are ignored.
	Remove(ctx context.Context, id string) error

	// RemoveBatch deletes every listed id that is present and reports how
	// many were removed.
	RemoveBatch(ctx context.Context, ids []string) (int, error)

	// Clear deletes everything.
	Clear(ctx context.Context) error

	// GetAll returns every event in ascending CreatedAt order.
	GetAll(ctx context.Context) ([]*Event, error)

	// Size returns the number of queued events.
	Size(ctx context.Context) (int, error)

	// IncrementRetry bumps RetryCount, failing with ErrNotFound if absent.
	IncrementRetry(ctx context.Context, id string) error

	// FindBySerial returns the queued events for one badge, oldest first.
	FindBySerial(ctx context.Context, serial string) ([]*Event, error)

	// PruneExpired deletes events created before cutoff.
	PruneExpired(ctx context.Context, cutoff time.Time) (int, error)

	// EnforceMaxSize evicts the oldest events until at most limit remain.
	EnforceMaxSize(ctx context.Context, limit int) (int, error)
}

// Key layout. All three keys of an event are written and deleted together.
//
//	event:<id>                           -> JSON Event
//	created:<8-byte createdAt>:<id>     -> serial number
//	serial:<serial>\x00<id>              -> empty
const (
	prefixEvent   = "event:"
	prefixCreated = "created:"
	prefixSerial  = "serial:"
)

// deleteChunk bounds the keys touched per transaction so large prunes stay
// under Badger's transaction size limit.
const deleteChunk = 500

func eventKey(id string) []byte {
	return []byte(prefixEvent + id)
}

// createdKey sorts by createdAt, then id. The sign bit is flipped so that
// big-endian byte order matches signed order.
func createdKey(createdAt time.Time, id string) []byte {
	k := make([]byte, 0, len(prefixCreated)+8+1+len(id))
	k = append(k, prefixCreated...)
	k = binary.BigEndian.AppendUint64(k, uint64(createdAt.UnixNano())^(1<<63))
	k = append(k, ':')
	return append(k, id...)
}

func parseCreatedKey(k []byte) (time.Time, string, bool) {
	const head = len(prefixCreated) + 8 + 1
	if len(k) <= head {
		return time.Time{}, "", false
	}
	nanos := int64(binary.BigEndian.Uint64(k[len(prefixCreated):]) ^ (1 << 63))
	return time.Unix(0, nanos), string(k[head:]), true
}

func serialPrefix(serial string) []byte {
	return []byte(prefixSerial + serial + "\x00")
}

func serialKey(serial, id string) []byte {
	return append(serialPrefix(serial), id...)
}

// indexRef is what the ordering index knows about an event, which is enough
// to delete all of its keys without reading the event itself.
type indexRef struct {
	createdKey []byte
	id         string
	serial     string
}

// BadgerStore implements Store on BadgerDB.
//
// Every mutation holds mu for its whole read-modify-write and runs in one
// Badger transaction, so two mutations never interleave. count mirrors the
// number of ordering index keys and is only changed with mu held.
type BadgerStore struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	count  int
	closed bool
}

var _ Store = (*BadgerStore)(nil)

// Open opens (or creates) the queue at cfg.Path.
func Open(cfg Config) (*BadgerStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.NumCompactors = cfg.NumCompactors
	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &BadgerStore{db: db, config: cfg}
	n, err := s.countIndex()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count queued events: %w", err)
	}
	s.count = n
	UpdateQueueSize(n)

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Int("queued", n).
		Int("max_size", cfg.MaxSize).
		Msg("Queue store opened")
	return s, nil
}

func (s *BadgerStore) countIndex() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixCreated)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Enqueue implements Store.
func (s *BadgerStore) Enqueue(ctx context.Context, e *Event) error {
	start := time.Now()
	defer func() { RecordEnqueueLatency(time.Since(start).Seconds()) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get(eventKey(e.ID))
		if getErr == nil {
			return &DuplicateIDError{ID: e.ID}
		}
		if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}
		if setErr := txn.Set(eventKey(e.ID), data); setErr != nil {
			return setErr
		}
		if setErr := txn.Set(createdKey(e.CreatedAt, e.ID), []byte(e.SerialNumber)); setErr != nil {
			return setErr
		}
		return txn.Set(serialKey(e.SerialNumber, e.ID), nil)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateID) {
			RecordDuplicate()
			return err
		}
		RecordEnqueueFailure()
		return fmt.Errorf("write event: %w", err)
	}

	s.count++
	RecordEnqueued()

	if s.count > s.config.MaxSize {
		if _, evictErr := s.enforceMaxSizeLocked(ctx, s.config.MaxSize); evictErr != nil {
			logging.Error().Err(evictErr).Msg("Queue size enforcement failed")
		}
	}
	UpdateQueueSize(s.count)
	return nil
}

// Dequeue implements Store.
func (s *BadgerStore) Dequeue(ctx context.Context) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var out *Event
	err := s.db.Update(func(txn *badger.Txn) error {
		ref, err := firstRef(txn)
		if err != nil || ref == nil {
			return err
		}
		ev, err := readEvent(txn, ref.id)
		if err != nil {
			return err
		}
		if err := deleteRefTxn(txn, ref); err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if out != nil {
		s.count--
		RecordRemoved(1)
		UpdateQueueSize(s.count)
	}
	return out, nil
}

// Peek implements Store.
func (s *BadgerStore) Peek(ctx context.Context) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var out *Event
	err := s.db.View(func(txn *badger.Txn) error {
		ref, err := firstRef(txn)
		if err != nil || ref == nil {
			return err
		}
		out, err = readEvent(txn, ref.id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}
	return out, nil
}

// Remove implements Store.
func (s *BadgerStore) Remove(ctx context.Context, id string) error {
	_, err := s.RemoveBatch(ctx, []string{id})
	return err
}

// RemoveBatch implements Store.
func (s *BadgerStore) RemoveBatch(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	removed := 0
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		n := 0
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, id := range ids[start:end] {
				ev, err := readEvent(txn, id)
				if errors.Is(err, ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if err := deleteRefTxn(txn, refOf(ev)); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			s.resyncCountLocked()
			return removed, fmt.Errorf("remove events: %w", err)
		}
		removed += n
		s.count -= n
	}

	RecordRemoved(removed)
	UpdateQueueSize(s.count)
	return removed, nil
}

// Clear implements Store.
func (s *BadgerStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if err := s.db.DropPrefix([]byte(prefixEvent), []byte(prefixCreated), []byte(prefixSerial)); err != nil {
		s.resyncCountLocked()
		return fmt.Errorf("clear queue: %w", err)
	}
	s.count = 0
	UpdateQueueSize(0)
	return nil
}

// GetAll implements Store.
func (s *BadgerStore) GetAll(ctx context.Context) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]*Event, 0, s.count)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixCreated)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, id, ok := parseCreatedKey(it.Item().Key())
			if !ok {
				continue
			}
			ev, err := readEvent(txn, id)
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// Size implements Store.
func (s *BadgerStore) Size(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return s.count, nil
}

// IncrementRetry implements Store.
func (s *BadgerStore) IncrementRetry(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		ev, err := readEvent(txn, id)
		if err != nil {
			return err
		}
		ev.RetryCount++
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return txn.Set(eventKey(id), data)
	})
}

// FindBySerial implements Store.
func (s *BadgerStore) FindBySerial(ctx context.Context, serial string) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	prefix := serialPrefix(serial)
	var out []*Event
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			ev, err := readEvent(txn, string(it.Item().Key()[len(prefix):]))
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find by serial: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PruneExpired implements Store. The ordering index is scanned from the
// oldest key and the scan stops at the first event not older than cutoff.
func (s *BadgerStore) PruneExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	refs, err := s.collectRefs(ctx, func(createdAt time.Time, _ int) bool {
		return createdAt.Before(cutoff)
	})
	if err != nil {
		return 0, fmt.Errorf("scan expired events: %w", err)
	}

	n, err := s.deleteRefsLocked(refs)
	if n > 0 {
		RecordExpired(n)
		UpdateQueueSize(s.count)
		logging.Info().
			Int("expired", n).
			Time("cutoff", cutoff).
			Msg("Expired check-ins purged from queue")
	}
	return n, err
}

// EnforceMaxSize implements Store.
func (s *BadgerStore) EnforceMaxSize(ctx context.Context, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	limit = max(limit, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	n, err := s.enforceMaxSizeLocked(ctx, limit)
	UpdateQueueSize(s.count)
	return n, err
}

func (s *BadgerStore) enforceMaxSizeLocked(ctx context.Context, limit int) (int, error) {
	excess := s.count - limit
	if excess <= 0 {
		return 0, nil
	}

	refs, err := s.collectRefs(ctx, func(_ time.Time, seen int) bool {
		return seen < excess
	})
	if err != nil {
		return 0, fmt.Errorf("scan oldest events: %w", err)
	}

	n, err := s.deleteRefsLocked(refs)
	if n > 0 {
		RecordEvicted(n)
		logging.Warn().
			Int("evicted", n).
			Int("max_size", limit).
			Msg("Queue over capacity, oldest check-ins evicted")
	}
	return n, err
}

// collectRefs walks the ordering index oldest first while keep returns true.
// seen is the number of refs collected so far.
func (s *BadgerStore) collectRefs(ctx context.Context, keep func(createdAt time.Time, seen int) bool) ([]indexRef, error) {
	var refs []indexRef
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixCreated)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			createdAt, id, ok := parseCreatedKey(item.Key())
			if !ok {
				continue
			}
			if !keep(createdAt, len(refs)) {
				return nil
			}
			serial, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			refs = append(refs, indexRef{
				createdKey: item.KeyCopy(nil),
				id:         id,
				serial:     string(serial),
			})
		}
		return nil
	})
	return refs, err
}

func (s *BadgerStore) deleteRefsLocked(refs []indexRef) (int, error) {
	deleted := 0
	for start := 0; start < len(refs); start += deleteChunk {
		end := min(start+deleteChunk, len(refs))
		err := s.db.Update(func(txn *badger.Txn) error {
			for i := range refs[start:end] {
				if err := deleteRefTxn(txn, &refs[start+i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.resyncCountLocked()
			return deleted, fmt.Errorf("delete events: %w", err)
		}
		deleted += end - start
		s.count -= end - start
	}
	return deleted, nil
}

// resyncCountLocked recounts after a failed multi-transaction delete left
// count unknown.
func (s *BadgerStore) resyncCountLocked() {
	n, err := s.countIndex()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to recount queue after write error")
		return
	}
	s.count = n
}

func firstRef(txn *badger.Txn) (*indexRef, error) {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixCreated)})
	defer it.Close()

	it.Rewind()
	if !it.Valid() {
		return nil, nil
	}
	item := it.Item()
	_, id, ok := parseCreatedKey(item.Key())
	if !ok {
		return nil, fmt.Errorf("malformed index key %q", item.Key())
	}
	serial, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return &indexRef{createdKey: item.KeyCopy(nil), id: id, serial: string(serial)}, nil
}

func refOf(ev *Event) *indexRef {
	return &indexRef{
		createdKey: createdKey(ev.CreatedAt, ev.ID),
		id:         ev.ID,
		serial:     ev.SerialNumber,
	}
}

func deleteRefTxn(txn *badger.Txn, ref *indexRef) error {
	if err := txn.Delete(eventKey(ref.id)); err != nil {
		return err
	}
	if err := txn.Delete(ref.createdKey); err != nil {
		return err
	}
	return txn.Delete(serialKey(ref.serial, ref.id))
}

func readEvent(txn *badger.Txn, id string) (*Event, error) {
	item, err := txn.Get(eventKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}

	var ev Event
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ev)
	}); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", id, err)
	}
	return &ev, nil
}

// Stats describes the on-disk state of the queue.
type Stats struct {
	Count     int   `json:"count"`
	MaxSize   int   `json:"maxSize"`
	LSMBytes  int64 `json:"lsmBytes"`
	VLogBytes int64 `json:"vlogBytes"`
}

// Stats returns the current queue statistics.
func (s *BadgerStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Count: s.count, MaxSize: s.config.MaxSize}
	if !s.closed {
		st.LSMBytes, st.VLogBytes = s.db.Size()
	}
	return st
}

// RunGC runs Badger value log GC until nothing is left to rewrite.
func (s *BadgerStore) RunGC() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	start := time.Now()
	defer func() {
		RecordGCRun(time.Since(start).Seconds())
	}()

	for {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close flushes and closes the database, waiting at most CloseTimeout.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	timeout := s.config.CloseTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan error, 1)
	go func() { done <- s.db.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Queue store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
