// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/logging"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypeSyncStatus    = "sync_status"
	MessageTypeCheckinQueued = "checkin_queued"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is the envelope of every frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CheckinQueuedData is sent after a scan has been written to the queue.
type CheckinQueuedData struct {
	ID        string `json:"id"`
	QueueSize int    `json:"queueSize"`
}

// Hub fans messages out to the connected kiosk UI clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	// snapshot, when set, produces the message a new client receives first.
	snapshot func() (Message, bool)
}

// NewHub creates a hub. Call RunWithContext to start it.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// SetSnapshot registers fn to build the greeting message for new clients.
// Call before RunWithContext.
func (h *Hub) SetSnapshot(fn func() (Message, bool)) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// RunWithContext runs the hub until ctx is done, then closes every client.
// Lifecycle events are handled before broadcasts so a message is never sent
// to a client that already left.
func (h *Hub) RunWithContext(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Done is closed once RunWithContext has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	snapshot := h.snapshot
	h.mu.Unlock()

	if snapshot != nil {
		if msg, ok := snapshot(); ok {
			select {
			case client.send <- msg:
			default:
			}
		}
	}
	logging.Debug().Uint64("client_id", client.id).Int("total_clients", count).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	logging.Debug().Uint64("client_id", client.id).Int("total_clients", count).Msg("websocket client disconnected")
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// broadcastToClients delivers in client id order. Clients whose send buffer
// is full are dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClientsLocked() {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
			logging.Warn().Uint64("client_id", client.id).Msg("websocket client too slow, dropped")
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.sortedClientsLocked() {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// BroadcastJSON queues a message for every client. It never blocks; when
// the queue is full the message is dropped.
func (h *Hub) BroadcastJSON(messageType string, data any) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastSyncStatus pushes a sync status snapshot.
func (h *Hub) BroadcastSyncStatus(status any) {
	h.BroadcastJSON(MessageTypeSyncStatus, status)
}

// BroadcastCheckinQueued announces a new queued check-in.
func (h *Hub) BroadcastCheckinQueued(id string, queueSize int) {
	h.BroadcastJSON(MessageTypeCheckinQueued, CheckinQueuedData{ID: id, QueueSize: queueSize})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage encodes msg as JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
