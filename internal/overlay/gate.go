// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package overlay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/packstream/packstream/internal/logging"
	"github.com/packstream/packstream/internal/metrics"
)

// admitTimeout bounds how long a fresh connection may take to present its key.
const admitTimeout = 10 * time.Second

// ErrRejected is returned by Admit when the presented key does not resolve
// to a creator.
var ErrRejected = errors.New("overlay session rejected")

// KeyStore resolves an opaque overlay key to a creator ID. Unknown or
// revoked keys return ErrUnknownKey.
type KeyStore interface {
	Resolve(ctx context.Context, key string) (creatorID string, err error)
}

// Gate admits fresh overlay connections. The first inbound frame is read as
// an opaque key; a key that resolves registers the connection with the hub,
// anything else closes the connection with a normal-closure code.
type Gate struct {
	keys KeyStore
	hub  *Hub
}

// NewGate creates a gate backed by the given key store and hub.
func NewGate(keys KeyStore, hub *Hub) *Gate {
	return &Gate{keys: keys, hub: hub}
}

// Admit authenticates a freshly upgraded connection and, on success, hands it
// to the hub and starts its pumps. This is the only path to registration.
func (g *Gate) Admit(ctx context.Context, conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(admitTimeout)); err != nil {
		g.reject(conn)
		return "", err
	}

	msgType, frame, err := conn.ReadMessage()
	if err != nil {
		g.reject(conn)
		return "", err
	}
	if msgType != websocket.TextMessage {
		g.reject(conn)
		return "", ErrRejected
	}

	key := strings.TrimSpace(string(frame))
	creatorID, err := g.keys.Resolve(ctx, key)
	if err != nil {
		logging.Warn().Msg("overlay key rejected")
		g.reject(conn)
		return "", ErrRejected
	}

	// Clear the auth deadline; the read pump manages its own.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		g.reject(conn)
		return "", err
	}

	client := NewClient(creatorID, conn)
	g.hub.Register(client)
	client.Start()

	metrics.OverlayAdmissions.WithLabelValues("admitted").Inc()
	logging.Info().Str("creator_id", creatorID).Msg("overlay session admitted")
	return creatorID, nil
}

// reject closes the connection with a normal closure. The key never echoes
// back to the peer or into logs.
func (g *Gate) reject(conn *websocket.Conn) {
	metrics.OverlayAdmissions.WithLabelValues("rejected").Inc()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	_ = conn.Close()
}
