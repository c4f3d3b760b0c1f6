// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCleaner struct {
	calls   atomic.Int32
	removed int
	err     error
}

func (f *fakeCleaner) CleanExpired(context.Context) (int, error) {
	f.calls.Add(1)
	return f.removed, f.err
}

type fakeGC struct {
	runs atomic.Int32
	err  error
}

func (f *fakeGC) RunGC() error {
	f.runs.Add(1)
	return f.err
}

func TestMaintainer_RunNow(t *testing.T) {
	cleaner := &fakeCleaner{removed: 4}
	gc := &fakeGC{}
	m := NewMaintainer(cleaner, gc, time.Hour)

	var hookGot int
	m.OnCleaned(func(n int) { hookGot = n })

	n, err := m.RunNow(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("RunNow() = %d, %v", n, err)
	}
	if gc.runs.Load() != 1 {
		t.Errorf("GC runs = %d, want 1", gc.runs.Load())
	}
	if hookGot != 4 {
		t.Errorf("hook got %d, want 4", hookGot)
	}
	if last, removed := m.LastRun(); last.IsZero() || removed != 4 {
		t.Errorf("LastRun() = %v, %d", last, removed)
	}
}

func TestMaintainer_RunNowCleanerError(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("disk gone")}
	gc := &fakeGC{}
	m := NewMaintainer(cleaner, gc, time.Hour)

	called := false
	m.OnCleaned(func(int) { called = true })

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if gc.runs.Load() != 0 || called {
		t.Error("GC and hooks should not run after a failed clean")
	}
}

func TestMaintainer_GCErrorIsNotFatal(t *testing.T) {
	m := NewMaintainer(&fakeCleaner{removed: 1}, &fakeGC{err: errors.New("busy")}, time.Hour)
	if n, err := m.RunNow(context.Background()); err != nil || n != 1 {
		t.Fatalf("RunNow() = %d, %v", n, err)
	}
}

func TestMaintainer_NilGC(t *testing.T) {
	m := NewMaintainer(&fakeCleaner{}, nil, 0)
	if m.interval != 6*time.Hour {
		t.Errorf("default interval = %v", m.interval)
	}
	if _, err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
}

func TestMaintainer_StartStop(t *testing.T) {
	cleaner := &fakeCleaner{}
	m := NewMaintainer(cleaner, nil, 20*time.Millisecond)

	var mu sync.Mutex
	passes := 0
	m.OnCleaned(func(int) {
		mu.Lock()
		passes++
		mu.Unlock()
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		p := passes
		mu.Unlock()
		if p >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	m.Stop()
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if cleaner.calls.Load() < 2 {
		t.Errorf("cleaner called %d times, want at least 2", cleaner.calls.Load())
	}

	after := cleaner.calls.Load()
	time.Sleep(60 * time.Millisecond)
	if cleaner.calls.Load() != after {
		t.Error("cleaner ran after Stop")
	}
}

func TestMaintainer_UpdatesDBSize(t *testing.T) {
	s := setupStore(t)
	mustEnqueue(t, s, testEvent("a", baseTime))

	m := NewMaintainer(&fakeCleaner{}, s, time.Hour)
	if _, err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
}
