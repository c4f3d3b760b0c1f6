// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one badge scan awaiting delivery to the backend.
//
// ID, CreatedAt and SequenceNumber are fixed at enqueue time. RetryCount is
// the only field the queue mutates afterwards.
type Event struct {
	ID             string    `json:"id"`
	SerialNumber   string    `json:"serialNumber"`
	KioskID        string    `json:"kioskId"`
	Timestamp      time.Time `json:"timestamp"`
	LocalTimestamp int64     `json:"localTimestamp"`
	SequenceNumber int64     `json:"sequenceNumber"`
	RetryCount     int       `json:"retryCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (e *Event) validate() error {
	switch {
	case e == nil:
		return ErrNilEvent
	case e.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	case e.SerialNumber == "":
		return fmt.Errorf("%w: serial number is required", ErrInvalidEvent)
	case strings.ContainsRune(e.SerialNumber, 0):
		return fmt.Errorf("%w: serial number contains NUL", ErrInvalidEvent)
	case e.CreatedAt.IsZero():
		return fmt.Errorf("%w: createdAt is required", ErrInvalidEvent)
	}
	return nil
}

var (
	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("queue store is closed")

	// ErrNilEvent is returned when Enqueue is given a nil event.
	ErrNilEvent = errors.New("event cannot be nil")

	// ErrInvalidEvent is returned for events missing required fields.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrDuplicateID matches DuplicateIDError via errors.Is.
	ErrDuplicateID = errors.New("duplicate event id")

	// ErrNotFound matches NotFoundError via errors.Is.
	ErrNotFound = errors.New("event not found")
)

// DuplicateIDError is returned when an event with the same id is already queued.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("checkin with id %s already exists", e.ID)
}

// Is makes errors.Is(err, ErrDuplicateID) hold.
func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// NotFoundError is returned when an id-addressed update finds nothing.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("checkin with id %s not found", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
