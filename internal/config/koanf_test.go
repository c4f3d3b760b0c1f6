// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("KIOSK_ID", "lobby-1")
	t.Setenv("API_URL", "https://checkin.example.com/api/")
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Queue.MaxSize != 10000 {
		t.Errorf("Queue.MaxSize = %d, want 10000", cfg.Queue.MaxSize)
	}
	if cfg.Queue.MaxAge != 7*24*time.Hour {
		t.Errorf("Queue.MaxAge = %v, want 168h", cfg.Queue.MaxAge)
	}
	if cfg.Queue.CleanupInterval != 6*time.Hour {
		t.Errorf("Queue.CleanupInterval = %v, want 6h", cfg.Queue.CleanupInterval)
	}
	if !cfg.Queue.SyncWrites {
		t.Error("Queue.SyncWrites should default to true")
	}
	if cfg.Sync.BatchSize != 100 {
		t.Errorf("Sync.BatchSize = %d, want 100", cfg.Sync.BatchSize)
	}
	if cfg.Sync.RequestTimeout != 15*time.Second {
		t.Errorf("Sync.RequestTimeout = %v, want 15s", cfg.Sync.RequestTimeout)
	}
	wantDelays := []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second, 2 * time.Minute}
	if !reflect.DeepEqual(cfg.Sync.RetryDelays, wantDelays) {
		t.Errorf("Sync.RetryDelays = %v, want %v", cfg.Sync.RetryDelays, wantDelays)
	}
	if cfg.Sync.ProbeInterval != 30*time.Second || cfg.Sync.ProbeTimeout != 5*time.Second {
		t.Errorf("probe = %v/%v, want 30s/5s", cfg.Sync.ProbeInterval, cfg.Sync.ProbeTimeout)
	}
	if cfg.Sequence.Key != "sentinel:sequence_counter" {
		t.Errorf("Sequence.Key = %q", cfg.Sequence.Key)
	}
}

func TestLoadWithKoanf_EnvOnly(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("QUEUE_MAX_SIZE", "500")
	t.Setenv("SYNC_RETRY_DELAYS", "1s, 2s,4s")
	t.Setenv("CORS_ORIGINS", "http://a.local,http://b.local")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Kiosk.ID != "lobby-1" {
		t.Errorf("Kiosk.ID = %q", cfg.Kiosk.ID)
	}
	if cfg.Kiosk.APIURL != "https://checkin.example.com/api" {
		t.Errorf("Kiosk.APIURL = %q, trailing slash should be trimmed", cfg.Kiosk.APIURL)
	}
	if cfg.Queue.MaxSize != 500 {
		t.Errorf("Queue.MaxSize = %d, want 500", cfg.Queue.MaxSize)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if !reflect.DeepEqual(cfg.Sync.RetryDelays, want) {
		t.Errorf("RetryDelays = %v, want %v", cfg.Sync.RetryDelays, want)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadWithKoanf_LegacyViteURL(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("KIOSK_ID", "lobby-1")
	t.Setenv("VITE_API_URL", "http://10.0.0.5:3000/api")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Kiosk.APIURL != "http://10.0.0.5:3000/api" {
		t.Errorf("Kiosk.APIURL = %q", cfg.Kiosk.APIURL)
	}
}

func TestLoadWithKoanf_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
kiosk:
  id: from-file
  api_url: http://backend.local:3000/api
queue:
  max_size: 250
  max_age: 48h
sync:
  batch_size: 50
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SYNC_BATCH_SIZE", "25")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Kiosk.ID != "from-file" {
		t.Errorf("Kiosk.ID = %q", cfg.Kiosk.ID)
	}
	if cfg.Queue.MaxSize != 250 || cfg.Queue.MaxAge != 48*time.Hour {
		t.Errorf("queue = %d/%v", cfg.Queue.MaxSize, cfg.Queue.MaxAge)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Errorf("Sync.BatchSize = %d, env should override file", cfg.Sync.BatchSize)
	}
	if cfg.Sync.RequestTimeout != 15*time.Second {
		t.Errorf("unset keys should keep defaults, RequestTimeout = %v", cfg.Sync.RequestTimeout)
	}
}

func TestLoadWithKoanf_MissingKioskID(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("API_URL", "https://checkin.example.com")

	_, err := LoadWithKoanf()
	if err == nil || !strings.Contains(err.Error(), "id is required") {
		t.Fatalf("err = %v, want kiosk id required", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Kiosk.ID = "lobby-1"
		cfg.Kiosk.APIURL = "https://checkin.example.com/api"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"query in url", func(c *Config) { c.Kiosk.APIURL = "https://x.example.com/api?debug=1" }, "kiosk.api_url"},
		{"shared store path", func(c *Config) { c.Sequence.Path = c.Queue.Path }, "sequence.path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"tiny max age", func(c *Config) { c.Queue.MaxAge = time.Second }, "queue.max_age"},
		{"zero retry delay", func(c *Config) { c.Sync.RetryDelays = []time.Duration{time.Second, 0} }, "sync.retry_delays[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}

	t.Run("tag constraints", func(t *testing.T) {
		cfg := valid()
		cfg.Sync.BatchSize = 0
		cfg.Logging.Format = "xml"
		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error")
		}
		for _, want := range []string{"batch_size", "format"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q does not mention %s", err, want)
			}
		}
	})

	t.Run("batch size capped at bulk endpoint limit", func(t *testing.T) {
		cfg := valid()
		cfg.Sync.BatchSize = 100
		if err := cfg.Validate(); err != nil {
			t.Fatalf("batch size 100 rejected: %v", err)
		}
		cfg.Sync.BatchSize = 101
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "batch_size") {
			t.Errorf("batch size 101: err = %v, want batch_size error", err)
		}
	})
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8787}
	if got := s.Addr(); got != "127.0.0.1:8787" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	if got := envTransformFunc("QUEUE_MAX_AGE"); got != "queue.max_age" {
		t.Errorf("QUEUE_MAX_AGE -> %q", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("unmapped variable should be ignored, got %q", got)
	}
}
