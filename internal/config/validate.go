// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/validation"
)

// ConfigError reports one invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// normalize trims values that commonly arrive with stray whitespace or a
// trailing slash from deployment tooling.
func (c *Config) normalize() {
	c.Kiosk.ID = strings.TrimSpace(c.Kiosk.ID)
	c.Kiosk.APIURL = strings.TrimRight(strings.TrimSpace(c.Kiosk.APIURL), "/")
}

// Validate checks tag constraints first, then the rules tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := validateBaseURL(c.Kiosk.APIURL); err != nil {
		return &ConfigError{Field: "kiosk.api_url", Message: err.Error()}
	}
	if err := c.validateDurations(); err != nil {
		return err
	}
	if c.Queue.Path == c.Sequence.Path {
		return &ConfigError{Field: "sequence.path", Message: "must differ from queue.path"}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

func (c *Config) validateDurations() error {
	checks := []struct {
		field string
		value time.Duration
		min   time.Duration
	}{
		{"queue.max_age", c.Queue.MaxAge, time.Minute},
		{"queue.cleanup_interval", c.Queue.CleanupInterval, time.Second},
		{"queue.close_timeout", c.Queue.CloseTimeout, time.Second},
		{"sync.request_timeout", c.Sync.RequestTimeout, 100 * time.Millisecond},
		{"sync.probe_interval", c.Sync.ProbeInterval, time.Second},
		{"sync.probe_timeout", c.Sync.ProbeTimeout, 100 * time.Millisecond},
		{"sync.link_poll_interval", c.Sync.LinkPollInterval, 100 * time.Millisecond},
	}
	for _, chk := range checks {
		if chk.value < chk.min {
			return &ConfigError{Field: chk.field, Message: fmt.Sprintf("must be at least %s", chk.min)}
		}
	}
	for i, d := range c.Sync.RetryDelays {
		if d <= 0 {
			return &ConfigError{Field: fmt.Sprintf("sync.retry_delays[%d]", i), Message: "must be positive"}
		}
	}
	if c.Server.Enabled && c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return &ConfigError{Field: "server.rate_limit_window", Message: "must be positive when rate limiting is enabled"}
	}
	return nil
}

// validateBaseURL accepts http(s) URLs with an optional path prefix such as
// https://checkin.example.com/api, but no query or fragment.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("must not contain a query or fragment")
	}
	return nil
}
