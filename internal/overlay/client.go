// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package overlay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/packstream/packstream/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // overlay clients only send the auth frame
)

// clientIDCounter generates unique, monotonically increasing IDs for clients.
// IDs give fan-out and sweep a stable iteration order.
var clientIDCounter atomic.Uint64

// Client is one admitted overlay connection. The hub registry holds the only
// long-lived reference; the client's liveness flag is observed by the sweep
// and never set back to open once cleared.
type Client struct {
	id        uint64
	creatorID string
	conn      *websocket.Conn
	send      chan []byte
	open      atomic.Bool
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection for the given creator.
func NewClient(creatorID string, conn *websocket.Conn) *Client {
	c := &Client{
		id:        clientIDCounter.Add(1),
		creatorID: creatorID,
		conn:      conn,
		send:      make(chan []byte, 64),
	}
	c.open.Store(true)
	return c
}

// CreatorID returns the creator this connection was admitted for.
func (c *Client) CreatorID() string {
	return c.creatorID
}

// Open reports whether the connection is still usable for pushes.
func (c *Client) Open() bool {
	return c.open.Load()
}

// push queues a payload without blocking. A full buffer means the peer has
// stopped draining; the connection is treated as faulted and the sweep will
// remove it.
func (c *Client) push(payload []byte) bool {
	if !c.open.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		logging.Warn().
			Str("creator_id", c.creatorID).
			Uint64("client_id", c.id).
			Msg("overlay send buffer full, marking connection faulted")
		c.markClosed()
		return false
	}
}

// markClosed flips the liveness flag and closes the underlying connection.
// Registry removal is left to the sweep.
func (c *Client) markClosed() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		_ = c.conn.Close()
	})
}

// readPump drains the connection. Overlay clients send no application frames
// after the auth frame; the pump exists to process pong control frames and to
// notice the peer closing.
func (c *Client) readPump() {
	defer c.markClosed()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected overlay close error")
			}
			return
		}
	}
}

// writePump pushes queued notifications and keeps the connection alive with
// pings. A failed write aborts only this connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.markClosed()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("overlay write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
