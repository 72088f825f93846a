// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package overlay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/packstream/packstream/internal/events"
	"github.com/packstream/packstream/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// connPair upgrades a loopback connection and returns both ends.
func connPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of connection")
	}
	t.Cleanup(func() { _ = server.Close() })

	return server, client
}

func testClient(t *testing.T, creatorID string) *Client {
	t.Helper()
	server, _ := connPair(t)
	return NewClient(creatorID, server)
}

func notification(creatorID string) *events.OverlayNotification {
	return events.NewOverlayNotification(creatorID, json.RawMessage(`{"order_id":"O1","amount":2500}`))
}

func TestRegisterDeduplicatesHandle(t *testing.T) {
	hub := NewHub(time.Minute)
	c := testClient(t, "CR1")

	hub.Register(c)
	hub.Register(c)

	if got := hub.CreatorConnectionCount("CR1"); got != 1 {
		t.Errorf("connections = %d, want 1 after duplicate register", got)
	}
}

func TestFanoutIsolatedPerCreator(t *testing.T) {
	hub := NewHub(time.Minute)
	cx := testClient(t, "CRX")
	cy := testClient(t, "CRY")
	hub.Register(cx)
	hub.Register(cy)

	hub.Fanout(notification("CRX"))

	select {
	case payload := <-cx.send:
		n, err := events.UnmarshalOverlayNotification(payload)
		if err != nil {
			t.Fatalf("delivered payload: %v", err)
		}
		if n.CreatorID != "CRX" {
			t.Errorf("creator = %q, want CRX", n.CreatorID)
		}
	default:
		t.Fatal("no delivery to CRX's connection")
	}

	select {
	case <-cy.send:
		t.Fatal("notification for CRX delivered to CRY's connection")
	default:
	}
}

func TestFanoutUnknownCreatorNoOp(t *testing.T) {
	hub := NewHub(time.Minute)
	// Must not panic or error; notifications are fire-and-forget.
	hub.Fanout(notification("nobody-home"))
}

func TestFanoutSkipsClosedConnection(t *testing.T) {
	hub := NewHub(time.Minute)
	open := testClient(t, "CR1")
	closed := testClient(t, "CR1")
	hub.Register(open)
	hub.Register(closed)
	closed.markClosed()

	hub.Fanout(notification("CR1"))

	if len(open.send) != 1 {
		t.Errorf("open connection deliveries = %d, want 1", len(open.send))
	}
	if len(closed.send) != 0 {
		t.Errorf("closed connection deliveries = %d, want 0", len(closed.send))
	}
	// Removal is the sweep's job, not fan-out's.
	if got := hub.CreatorConnectionCount("CR1"); got != 2 {
		t.Errorf("connections = %d, want 2 before sweep", got)
	}
}

func TestSweepRemovesClosedConnections(t *testing.T) {
	hub := NewHub(time.Minute)
	open := testClient(t, "CR1")
	closed := testClient(t, "CR2")
	hub.Register(open)
	hub.Register(closed)
	closed.markClosed()

	hub.Sweep()

	if got := hub.CreatorConnectionCount("CR1"); got != 1 {
		t.Errorf("CR1 connections = %d, want 1", got)
	}
	if got := hub.CreatorConnectionCount("CR2"); got != 0 {
		t.Errorf("CR2 connections = %d, want 0 after sweep", got)
	}
}

func TestFullSendBufferMarksConnectionFaulted(t *testing.T) {
	hub := NewHub(time.Minute)
	c := testClient(t, "CR1")
	hub.Register(c)

	// No write pump draining: fill the buffer, then overflow it.
	for i := 0; i < cap(c.send); i++ {
		c.send <- []byte("{}")
	}
	hub.Fanout(notification("CR1"))

	if c.Open() {
		t.Error("connection with full buffer should be marked faulted")
	}

	hub.Sweep()
	if got := hub.CreatorConnectionCount("CR1"); got != 0 {
		t.Errorf("connections = %d, want 0 after sweep of faulted connection", got)
	}
}

func TestRunWithContextClosesAllOnShutdown(t *testing.T) {
	hub := NewHub(10 * time.Millisecond)
	c := testClient(t, "CR1")
	hub.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after cancellation")
	}

	if c.Open() {
		t.Error("connection still open after hub shutdown")
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("connections = %d, want 0 after shutdown", hub.ConnectionCount())
	}
}
