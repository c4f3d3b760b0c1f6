// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds the kiosk agent configuration.
//
// Loading order (see LoadWithKoanf):
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/sentinel/config.yaml)
//  3. Environment variables
type Config struct {
	Kiosk    KioskConfig    `koanf:"kiosk"`
	Queue    QueueConfig    `koanf:"queue"`
	Sequence SequenceConfig `koanf:"sequence"`
	Sync     SyncConfig     `koanf:"sync"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// KioskConfig identifies this terminal and the backend it reports to.
type KioskConfig struct {
	ID           string `koanf:"id" validate:"required,max=64"`
	APIURL       string `koanf:"api_url" validate:"required,http_url"`
	APIKey       string `koanf:"api_key"`
	APIKeyHeader string `koanf:"api_key_header" validate:"required"`
}

// QueueConfig holds the durable queue settings.
type QueueConfig struct {
	Path            string        `koanf:"path" validate:"required"`
	SyncWrites      bool          `koanf:"sync_writes"`
	MaxSize         int           `koanf:"max_size" validate:"min=1"`
	MaxAge          time.Duration `koanf:"max_age"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	Compression     bool          `koanf:"compression"`
	GCRatio         float64       `koanf:"gc_ratio" validate:"gt=0,lt=1"`
	CloseTimeout    time.Duration `koanf:"close_timeout"`
}

// SequenceConfig holds the sequence counter settings. The counter lives in
// its own SQLite file so that wiping the queue never resets it.
type SequenceConfig struct {
	Path string `koanf:"path" validate:"required"`
	Key  string `koanf:"key" validate:"required"`
}

// SyncConfig holds the upload and reachability settings.
type SyncConfig struct {
	BatchSize           int             `koanf:"batch_size" validate:"min=1,max=100"`
	RequestTimeout      time.Duration   `koanf:"request_timeout"`
	RetryDelays         []time.Duration `koanf:"retry_delays" validate:"min=1"`
	ProbeInterval       time.Duration   `koanf:"probe_interval"`
	ProbeTimeout        time.Duration   `koanf:"probe_timeout"`
	LinkPollInterval    time.Duration   `koanf:"link_poll_interval"`
	MaxBatchesPerSecond float64         `koanf:"max_batches_per_second" validate:"gte=0"`
	BreakerEnabled      bool            `koanf:"breaker_enabled"`
}

// ServerConfig holds the local HTTP API settings.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Kiosk: KioskConfig{
			APIKeyHeader: "X-Kiosk-API-Key",
		},
		Queue: QueueConfig{
			Path:            "/data/queue",
			SyncWrites:      true,
			MaxSize:         10000,
			MaxAge:          7 * 24 * time.Hour,
			CleanupInterval: 6 * time.Hour,
			Compression:     true,
			GCRatio:         0.5,
			CloseTimeout:    30 * time.Second,
		},
		Sequence: SequenceConfig{
			Path: "/data/sequence.db",
			Key:  "sentinel:sequence_counter",
		},
		Sync: SyncConfig{
			BatchSize:      100,
			RequestTimeout: 15 * time.Second,
			RetryDelays: []time.Duration{
				5 * time.Second,
				15 * time.Second,
				45 * time.Second,
				2 * time.Minute,
			},
			ProbeInterval:       30 * time.Second,
			ProbeTimeout:        5 * time.Second,
			LinkPollInterval:    5 * time.Second,
			MaxBatchesPerSecond: 0,
			BreakerEnabled:      true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8787,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"http://localhost:5173"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
