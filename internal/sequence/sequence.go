// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package sequence hands out strictly increasing check-in sequence numbers.
//
// The counter is persisted in a SQLite file separate from the queue store,
// so clearing or losing the queue never rewinds it. Every allocation is
// committed before Next returns; a crash can leave a gap but never a repeat.
package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/tomtom215/sentinel/internal/logging"
)

// DefaultKey is the row that holds the kiosk counter.
const DefaultKey = "sentinel:sequence_counter"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("sequence generator is closed")

// Generator allocates sequence numbers.
type Generator interface {
	// Next allocates and durably records the next number.
	Next(ctx context.Context) (int64, error)

	// Current returns the last allocated number, or 0 if none.
	Current(ctx context.Context) (int64, error)
}

// SQLiteGenerator implements Generator on a single-row SQLite table.
type SQLiteGenerator struct {
	db  *sql.DB
	key string

	mu      sync.Mutex
	loaded  bool
	current int64
	closed  bool
}

var _ Generator = (*SQLiteGenerator)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
)`

// Open opens (or creates) the counter database at path.
func Open(path, key string) (*SQLiteGenerator, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sequence path is required")
	}
	if key == "" {
		key = DefaultKey
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("create sequence directory: %w", err)
	}

	// synchronous(FULL): the counter must be on disk before a number is used.
	dsn := "file:" + cleanPath +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	return &SQLiteGenerator{db: db, key: key}, nil
}

// Restore loads the persisted counter. Next calls it on first use; calling
// it again is harmless.
func (g *SQLiteGenerator) Restore(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	return g.restoreLocked(ctx)
}

func (g *SQLiteGenerator) restoreLocked(ctx context.Context) (int64, error) {
	var v int64
	err := g.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, g.key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		v = 0
	case err != nil:
		return 0, fmt.Errorf("read sequence counter: %w", err)
	}

	g.current = v
	g.loaded = true
	logging.Debug().Int64("sequence", v).Msg("Sequence counter restored")
	return v, nil
}

// Next implements Generator.
func (g *SQLiteGenerator) Next(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	if !g.loaded {
		if _, err := g.restoreLocked(ctx); err != nil {
			return 0, err
		}
	}

	var next int64
	err := g.db.QueryRowContext(ctx, `
INSERT INTO kv (key, value) VALUES (?, 1)
ON CONFLICT (key) DO UPDATE SET value = value + 1
RETURNING value`, g.key).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("advance sequence counter: %w", err)
	}
	if next <= g.current {
		// Only possible if the file was edited under us.
		return 0, fmt.Errorf("sequence counter went backwards: %d after %d", next, g.current)
	}

	g.current = next
	return next, nil
}

// Current implements Generator.
func (g *SQLiteGenerator) Current(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	if !g.loaded {
		return g.restoreLocked(ctx)
	}
	return g.current, nil
}

// Close closes the database.
func (g *SQLiteGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if err := g.db.Close(); err != nil {
		return fmt.Errorf("close sequence db: %w", err)
	}
	return nil
}
