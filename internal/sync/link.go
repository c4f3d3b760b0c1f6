// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import (
	"context"
	"net"
	"sync"
	"time"
)

// LinkWatcher reports local network link transitions.
type LinkWatcher interface {
	// Online reports the current link state.
	Online() bool

	// Watch calls fn on every transition until ctx is done.
	Watch(ctx context.Context, fn func(online bool))
}

// InterfaceWatcher polls the host's network interfaces. The link is up when
// at least one non-loopback interface is up and has an address.
type InterfaceWatcher struct {
	interval time.Duration
	check    func() bool
}

// NewInterfaceWatcher creates a watcher polling every interval.
func NewInterfaceWatcher(interval time.Duration) *InterfaceWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &InterfaceWatcher{interval: interval, check: hasUsableInterface}
}

// Online implements LinkWatcher.
func (w *InterfaceWatcher) Online() bool {
	return w.check()
}

// Watch implements LinkWatcher.
func (w *InterfaceWatcher) Watch(ctx context.Context, fn func(online bool)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last := w.check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := w.check()
			if now != last {
				last = now
				fn(now)
			}
		}
	}
}

func hasUsableInterface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// ManualLinkWatcher is driven by SetOnline, for hosts that learn about link
// changes from elsewhere (a UI process, NetworkManager hooks, tests).
type ManualLinkWatcher struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

// NewManualLinkWatcher creates a watcher with the given initial state.
func NewManualLinkWatcher(online bool) *ManualLinkWatcher {
	return &ManualLinkWatcher{online: online, subs: make(map[int]func(bool))}
}

// Online implements LinkWatcher.
func (w *ManualLinkWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// SetOnline records a new state and notifies watchers when it changed.
func (w *ManualLinkWatcher) SetOnline(online bool) {
	w.mu.Lock()
	if w.online == online {
		w.mu.Unlock()
		return
	}
	w.online = online
	subs := make([]func(bool), 0, len(w.subs))
	for _, fn := range w.subs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

// Watch implements LinkWatcher.
func (w *ManualLinkWatcher) Watch(ctx context.Context, fn func(online bool)) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	w.mu.Unlock()

	<-ctx.Done()

	w.mu.Lock()
	delete(w.subs, id)
	w.mu.Unlock()
}

var (
	_ LinkWatcher = (*InterfaceWatcher)(nil)
	_ LinkWatcher = (*ManualLinkWatcher)(nil)
)
