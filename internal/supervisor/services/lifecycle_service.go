// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package services

import (
	"context"
	"fmt"
)

// Lifecycle is the Start/Stop shape shared by queue.Maintainer,
// sync.Monitor and sync.Syncer. Start must not block; Stop must wait for
// the component's goroutines.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop()
}

// LifecycleService adapts a Start/Stop component to suture's Serve.
type LifecycleService struct {
	component Lifecycle
	name      string
}

// NewLifecycleService wraps component under name.
//
//	tree.AddDataService(services.NewLifecycleService(maintainer, "queue-maintainer"))
//	tree.AddSyncService(services.NewLifecycleService(monitor, "reachability-monitor"))
//	tree.AddSyncService(services.NewLifecycleService(syncer, "syncer"))
func NewLifecycleService(component Lifecycle, name string) *LifecycleService {
	return &LifecycleService{component: component, name: name}
}

// Serve implements suture.Service. A Start error is returned so suture
// restarts the component with backoff.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()
	s.component.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *LifecycleService) String() string {
	return s.name
}
