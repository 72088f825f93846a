// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package overlay holds the live registry of creator overlay connections and
// fans payment notifications out to them. The registry is process-local:
// scaling beyond one instance needs sticky routing or a shared backplane.
package overlay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/packstream/packstream/internal/events"
	"github.com/packstream/packstream/internal/logging"
	"github.com/packstream/packstream/internal/metrics"
)

// DefaultSweepInterval is how often dead connections are pruned.
const DefaultSweepInterval = 30 * time.Second

// Hub maps creator IDs to their open overlay connections. Register is the
// sole writer of additions and Sweep the sole writer of removals; both
// serialize against Fanout reads through the registry lock. Fan-out never
// removes mid-iteration, it only skips connections that are no longer open.
type Hub struct {
	mu            sync.RWMutex
	registry      map[string]map[*Client]struct{}
	sweepInterval time.Duration
}

// NewHub creates a hub. A non-positive sweepInterval uses the default.
func NewHub(sweepInterval time.Duration) *Hub {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Hub{
		registry:      make(map[string]map[*Client]struct{}),
		sweepInterval: sweepInterval,
	}
}

// Register adds an admitted connection to its creator's set. The set keys on
// the client handle, so re-registering the same handle is a no-op.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	set, ok := h.registry[client.creatorID]
	if !ok {
		set = make(map[*Client]struct{})
		h.registry[client.creatorID] = set
	}
	if _, dup := set[client]; dup {
		h.mu.Unlock()
		return
	}
	set[client] = struct{}{}
	total := h.totalLocked()
	h.mu.Unlock()

	metrics.OverlayConnections.Set(float64(total))
	logging.Info().
		Str("creator_id", client.creatorID).
		Uint64("client_id", client.id).
		Int("total_connections", total).
		Msg("overlay connection registered")
}

// Fanout pushes a notification to every open connection of its creator.
// Closed connections are skipped; an unknown creator is a no-op. Pushes are
// queued per connection, so one blocked peer never stalls the others.
func (h *Hub) Fanout(n *events.OverlayNotification) {
	payload, err := events.Marshal(n)
	if err != nil {
		logging.Error().Err(err).Str("creator_id", n.CreatorID).Msg("failed to marshal overlay notification")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.registry[n.CreatorID]))
	for client := range h.registry[n.CreatorID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	delivered := 0
	for _, client := range clients {
		if !client.Open() {
			metrics.OverlayFanoutDeliveries.WithLabelValues("skipped").Inc()
			continue
		}
		if client.push(payload) {
			delivered++
			metrics.OverlayFanoutDeliveries.WithLabelValues("delivered").Inc()
		} else {
			metrics.OverlayFanoutDeliveries.WithLabelValues("skipped").Inc()
		}
	}

	logging.Debug().
		Str("creator_id", n.CreatorID).
		Str("event_id", n.EventID).
		Int("delivered", delivered).
		Int("registered", len(clients)).
		Msg("overlay notification fanned out")
}

// Sweep removes connections that are no longer open and drops empty creator
// sets. It is the only place registrations are removed.
func (h *Hub) Sweep() {
	h.mu.Lock()
	removed := 0
	for creatorID, set := range h.registry {
		for client := range set {
			if !client.Open() {
				delete(set, client)
				removed++
			}
		}
		if len(set) == 0 {
			delete(h.registry, creatorID)
		}
	}
	total := h.totalLocked()
	h.mu.Unlock()

	if removed > 0 {
		metrics.OverlaySweepRemovals.Add(float64(removed))
		logging.Info().
			Int("removed", removed).
			Int("total_connections", total).
			Msg("overlay sweep pruned dead connections")
	}
	metrics.OverlayConnections.Set(float64(total))
}

// RunWithContext runs the periodic sweep until the context is canceled, then
// closes every connection. Designed for suture supervision.
func (h *Hub) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closed := h.closeAll()
			logging.Info().
				Str("component", "overlay-hub").
				Int("connections_closed", closed).
				Msg("overlay hub stopped")
			return ctx.Err()
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// ConnectionCount returns the number of registered connections, live or not.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalLocked()
}

// CreatorConnectionCount returns the number of registered connections for
// one creator.
func (h *Hub) CreatorConnectionCount(creatorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.registry[creatorID])
}

func (h *Hub) totalLocked() int {
	total := 0
	for _, set := range h.registry {
		total += len(set)
	}
	return total
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	for creatorID, set := range h.registry {
		for client := range set {
			client.markClosed()
			closed++
		}
		delete(h.registry, creatorID)
	}
	metrics.OverlayConnections.Set(0)
	return closed
}
