// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package validation wraps go-playground/validator with a shared instance,
// a badge_serial rule for scanned badge identifiers, and translation of
// field errors into the VALIDATION_ERROR body of the local API.
//
// Field names in messages follow the json tag, then the koanf tag, so the
// same validator reports "serialNumber" for API requests and "batch_size"
// for configuration.
package validation
