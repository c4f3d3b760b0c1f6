// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package websocket

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/logging"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// setupHub starts a hub that is stopped when the test ends.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

func createTestClient(hub *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, 16)}
}

func registerClient(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	hub.Register <- client
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		ok := hub.clients[client]
		hub.mu.RUnlock()
		if ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("client was not registered")
}

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-client.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub := setupHub(t)
	clients := []*Client{createTestClient(hub), createTestClient(hub), createTestClient(hub)}
	for _, c := range clients {
		registerClient(t, hub, c)
	}
	if got := hub.GetClientCount(); got != 3 {
		t.Fatalf("GetClientCount() = %d, want 3", got)
	}

	hub.BroadcastSyncStatus(map[string]any{"state": "syncing"})

	for _, c := range clients {
		msg := receive(t, c)
		if msg.Type != MessageTypeSyncStatus {
			t.Errorf("Type = %q, want %q", msg.Type, MessageTypeSyncStatus)
		}
	}
}

func TestHub_CheckinQueued(t *testing.T) {
	hub := setupHub(t)
	c := createTestClient(hub)
	registerClient(t, hub, c)

	hub.BroadcastCheckinQueued("evt-1", 4)

	msg := receive(t, c)
	data, ok := msg.Data.(CheckinQueuedData)
	if msg.Type != MessageTypeCheckinQueued || !ok {
		t.Fatalf("message = %+v", msg)
	}
	if data.ID != "evt-1" || data.QueueSize != 4 {
		t.Errorf("data = %+v", data)
	}
}

func TestHub_SnapshotOnRegister(t *testing.T) {
	hub := NewHub()
	hub.SetSnapshot(func() (Message, bool) {
		return Message{Type: MessageTypeSyncStatus, Data: "current"}, true
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()
	defer func() {
		cancel()
		<-hub.Done()
	}()

	c := createTestClient(hub)
	registerClient(t, hub, c)

	msg := receive(t, c)
	if msg.Type != MessageTypeSyncStatus || msg.Data != "current" {
		t.Errorf("greeting = %+v", msg)
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := setupHub(t)
	c := createTestClient(hub)
	registerClient(t, hub, c)

	hub.Unregister <- c
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("received a message instead of close")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after unregister")
	}
	if got := hub.GetClientCount(); got != 0 {
		t.Errorf("GetClientCount() = %d, want 0", got)
	}

	// Unregistering twice must not panic on a closed channel.
	hub.Unregister <- c
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := setupHub(t)
	slow := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, 1)}
	registerClient(t, hub, slow)

	hub.BroadcastJSON(MessageTypeSyncStatus, 1)
	hub.BroadcastJSON(MessageTypeSyncStatus, 2)

	deadline := time.Now().Add(time.Second)
	for hub.GetClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if got := hub.GetClientCount(); got != 0 {
		t.Errorf("GetClientCount() = %d, want slow client dropped", got)
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHub() // not running, nobody drains the channel
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.broadcast)+10; i++ {
			hub.BroadcastJSON(MessageTypeSyncStatus, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastJSON blocked on a full channel")
	}
}

func TestHub_RunWithContext_ClosesClients(t *testing.T) {
	tests := []struct {
		name   string
		ctx    func() (context.Context, context.CancelFunc)
		want   error
		reason ShutdownReason
	}{
		{
			name: "canceled",
			ctx:  func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			want: context.Canceled, reason: ShutdownReasonContextCanceled,
		},
		{
			name: "deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 200*time.Millisecond)
			},
			want: context.DeadlineExceeded, reason: ShutdownReasonContextDeadline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub()
			ctx, cancel := tt.ctx()
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- hub.RunWithContext(ctx) }()

			c := createTestClient(hub)
			registerClient(t, hub, c)

			if tt.want == context.Canceled {
				cancel()
			}
			select {
			case err := <-errCh:
				if !errors.Is(err, tt.want) {
					t.Errorf("RunWithContext() = %v, want %v", err, tt.want)
				}
			case <-time.After(time.Second):
				t.Fatal("hub did not stop")
			}

			if _, ok := <-c.send; ok {
				t.Error("client channel still open after shutdown")
			}
			if got := getShutdownReason(ctx); got != tt.reason {
				t.Errorf("getShutdownReason() = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := setupHub(t)
	c := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, 512)}
	registerClient(t, hub, c)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				hub.BroadcastJSON(MessageTypeSyncStatus, i*10+j)
			}
		}(i)
	}
	wg.Wait()

	got := 0
	timeout := time.After(time.Second)
	for got < 100 {
		select {
		case <-c.send:
			got++
		case <-timeout:
			t.Fatalf("received %d of 100 messages", got)
		}
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypeCheckinQueued, Data: CheckinQueuedData{ID: "a", QueueSize: 2}})
	if err != nil {
		t.Fatalf("MarshalMessage() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != MessageTypeCheckinQueued {
		t.Errorf("type = %v", decoded["type"])
	}
	inner, _ := decoded["data"].(map[string]any)
	if inner["id"] != "a" || inner["queueSize"] != float64(2) {
		t.Errorf("data = %v", decoded["data"])
	}
}
