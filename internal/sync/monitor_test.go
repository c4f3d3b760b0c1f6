// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/sentinel/internal/queue"
)

// healthClient is a Client whose health result is switchable.
type healthClient struct {
	healthy atomic.Bool
	probes  atomic.Int32
}

func (c *healthClient) BulkUpload(context.Context, []*queue.Event) (*BulkResponse, error) {
	return &BulkResponse{Success: true}, nil
}

func (c *healthClient) Health(context.Context) error {
	c.probes.Add(1)
	if c.healthy.Load() {
		return nil
	}
	return &NetworkError{Code: CodeConnection, Err: errors.New("connection refused")}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func waitForWatchers(t *testing.T, w *ManualLinkWatcher, n int) {
	t.Helper()
	waitFor(t, time.Second, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.subs) == n
	}, "link watch registration")
}

// eventRecorder collects Reachability updates.
type eventRecorder struct {
	mu     sync.Mutex
	events []Reachability
}

func (r *eventRecorder) record(ev Reachability) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) last(source EventSource) (Reachability, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Source == source {
			return r.events[i], true
		}
	}
	return Reachability{}, false
}

func TestMonitor_ProbeNow(t *testing.T) {
	client := &healthClient{}
	m := NewMonitor(client, nil, time.Hour)

	if m.ProbeNow(context.Background()) {
		t.Error("ProbeNow() = true with unhealthy backend")
	}
	if m.Current().Reachable {
		t.Error("Current().Reachable = true")
	}
	if got := testutil.ToFloat64(backendReachable); got != 0 {
		t.Errorf("kiosk_backend_reachable = %v, want 0", got)
	}

	client.healthy.Store(true)
	if !m.ProbeNow(context.Background()) {
		t.Error("ProbeNow() = false with healthy backend")
	}
	cur := m.Current()
	if !cur.Reachable || !cur.Online {
		t.Errorf("Current() = %+v, want online and reachable", cur)
	}
	if got := testutil.ToFloat64(backendReachable); got != 1 {
		t.Errorf("kiosk_backend_reachable = %v, want 1", got)
	}
}

func TestMonitor_SubscribeAndUnsubscribe(t *testing.T) {
	client := &healthClient{}
	client.healthy.Store(true)
	m := NewMonitor(client, nil, time.Hour)

	rec := &eventRecorder{}
	unsubscribe := m.Subscribe(rec.record)

	m.ProbeNow(context.Background())
	ev, ok := rec.last(SourceProbe)
	if !ok || !ev.Reachable {
		t.Fatalf("probe event = %+v, %v", ev, ok)
	}

	unsubscribe()
	m.ProbeNow(context.Background())
	rec.mu.Lock()
	n := len(rec.events)
	rec.mu.Unlock()
	if n != 1 {
		t.Errorf("events after unsubscribe = %d, want 1", n)
	}
}

func TestMonitor_LinkTransitions(t *testing.T) {
	client := &healthClient{}
	client.healthy.Store(true)
	link := NewManualLinkWatcher(true)
	m := NewMonitor(client, link, time.Hour)

	rec := &eventRecorder{}
	m.Subscribe(rec.record)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, time.Second, func() bool { return m.Current().Reachable }, "initial probe")
	waitForWatchers(t, link, 1)

	link.SetOnline(false)
	down, ok := rec.last(SourceLinkDown)
	if !ok || down.Online || down.Reachable {
		t.Fatalf("link down event = %+v, %v", down, ok)
	}
	if m.Current().Reachable {
		t.Error("still reachable after link down")
	}

	probesBefore := client.probes.Load()
	link.SetOnline(true)
	up, ok := rec.last(SourceLinkUp)
	if !ok || !up.Online || !up.Reachable {
		t.Fatalf("link up event = %+v, %v", up, ok)
	}
	if client.probes.Load() <= probesBefore {
		t.Error("link up did not probe the backend")
	}
}

func TestMonitor_LinkUpWithBackendDown(t *testing.T) {
	client := &healthClient{}
	link := NewManualLinkWatcher(false)
	m := NewMonitor(client, link, time.Hour)

	rec := &eventRecorder{}
	m.Subscribe(rec.record)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()
	waitForWatchers(t, link, 1)

	link.SetOnline(true)
	up, ok := rec.last(SourceLinkUp)
	if !ok || !up.Online || up.Reachable {
		t.Fatalf("link up event = %+v, want online but unreachable", up)
	}
}

func TestMonitor_PeriodicProbe(t *testing.T) {
	client := &healthClient{}
	m := NewMonitor(client, nil, 10*time.Millisecond)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, time.Second, func() bool { return client.probes.Load() >= 3 }, "three probes")

	client.healthy.Store(true)
	waitFor(t, time.Second, func() bool { return m.Current().Reachable }, "reachable after recovery")
}

func TestMonitor_StartStop(t *testing.T) {
	m := NewMonitor(&healthClient{}, nil, time.Hour)
	if m.IsRunning() {
		t.Fatal("IsRunning() = true before Start")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil")
	}
	m.Stop()
	m.Stop()
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestInterfaceWatcher_ReportsTransitions(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	w := &InterfaceWatcher{interval: 5 * time.Millisecond, check: up.Load}

	if !w.Online() {
		t.Fatal("Online() = false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan bool, 4)
	go w.Watch(ctx, func(online bool) { changes <- online })

	up.Store(false)
	select {
	case got := <-changes:
		if got {
			t.Error("first change = online, want offline")
		}
	case <-time.After(time.Second):
		t.Fatal("no link down notification")
	}

	up.Store(true)
	select {
	case got := <-changes:
		if !got {
			t.Error("second change = offline, want online")
		}
	case <-time.After(time.Second):
		t.Fatal("no link up notification")
	}
}

func TestManualLinkWatcher_IgnoresRepeats(t *testing.T) {
	w := NewManualLinkWatcher(true)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		w.Watch(ctx, func(bool) { calls.Add(1) })
		close(done)
	}()

	waitForWatchers(t, w, 1)

	w.SetOnline(true)
	w.SetOnline(false)
	w.SetOnline(false)
	w.SetOnline(true)

	if got := calls.Load(); got != 2 {
		t.Errorf("notifications = %d, want 2", got)
	}

	cancel()
	<-done
	w.mu.Lock()
	n := len(w.subs)
	w.mu.Unlock()
	if n != 0 {
		t.Errorf("subscribers after cancel = %d, want 0", n)
	}
}
