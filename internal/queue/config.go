// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package queue

import (
	"fmt"
	"time"
)

// Config holds the BadgerDB-backed queue settings.
type Config struct {
	// Path is the Badger directory. It must not be shared with anything else.
	Path string

	// SyncWrites fsyncs every commit. Leave on: a kiosk loses power without warning.
	SyncWrites bool

	// MaxSize caps the number of queued events; the oldest are evicted first.
	MaxSize int

	// Compression enables Snappy block compression.
	Compression bool

	// GCRatio is passed to RunValueLogGC.
	GCRatio float64

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration

	MemTableSize     int64
	ValueLogFileSize int64
	NumCompactors    int
}

// DefaultConfig returns settings sized for a single kiosk.
func DefaultConfig() Config {
	return Config{
		Path:             "/data/queue",
		SyncWrites:       true,
		MaxSize:          10000,
		Compression:      true,
		GCRatio:          0.5,
		CloseTimeout:     30 * time.Second,
		MemTableSize:     16 << 20,
		ValueLogFileSize: 64 << 20,
		NumCompactors:    2,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return &ConfigError{Field: "Path", Message: "queue path is required"}
	}
	if c.MaxSize < 1 {
		return &ConfigError{Field: "MaxSize", Message: "must be at least 1"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be between 0 and 1"}
	}
	if c.NumCompactors < 2 {
		return &ConfigError{Field: "NumCompactors", Message: "must be at least 2 (BadgerDB requirement)"}
	}
	return nil
}

// ConfigError reports an invalid queue setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("queue config error: %s: %s", e.Field, e.Message)
}
