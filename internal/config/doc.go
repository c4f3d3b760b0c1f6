// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package config loads the kiosk agent configuration with koanf.
//
// Sources are layered defaults, then an optional YAML file, then
// environment variables. Only the variables listed in envMappings are read,
// for example:
//
//	KIOSK_ID=lobby-1
//	API_URL=https://checkin.example.com/api
//	KIOSK_API_KEY=...
//	QUEUE_PATH=/data/queue
//	SEQUENCE_PATH=/data/sequence.db
//	SYNC_RETRY_DELAYS=5s,15s,45s,2m
//
// A minimal config.yaml:
//
//	kiosk:
//	  id: lobby-1
//	  api_url: https://checkin.example.com/api
//	queue:
//	  max_size: 10000
//	  max_age: 168h
//	sync:
//	  batch_size: 100
package config
