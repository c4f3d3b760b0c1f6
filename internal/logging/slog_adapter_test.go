// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBufferedSlog(buf *bytes.Buffer) *slog.Logger {
	return slog.New(&SlogHandler{logger: zerolog.New(buf)})
}

func TestSlogHandler_Attributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newBufferedSlog(&buf)

	logger.Warn("service restarted",
		"service", "queue-maintainer",
		"attempt", 3,
		"backoff", 5*time.Second,
		"healthy", false,
	)

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"service":"queue-maintainer"`,
		`"attempt":3`,
		`"healthy":false`,
		`"message":"service restarted"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestSlogHandler_Groups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newBufferedSlog(&buf).WithGroup("supervisor").With("name", "kiosk-agent")
	logger.Info("started")

	if !strings.Contains(buf.String(), `"supervisor.name":"kiosk-agent"`) {
		t.Errorf("grouped key missing: %s", buf.String())
	}
}

func TestSlogHandler_WithGroupEmpty(t *testing.T) {
	t.Parallel()

	h := &SlogHandler{logger: zerolog.Nop()}
	if got := h.WithGroup(""); got != h {
		t.Error("WithGroup(\"\") should return the same handler")
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := &SlogHandler{logger: zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel)}
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled for a warn logger")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled for a warn logger")
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
		{slog.LevelError + 4, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
