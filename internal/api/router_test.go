// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/packstream/packstream/internal/auth"
	"github.com/packstream/packstream/internal/config"
	"github.com/packstream/packstream/internal/logging"
	"github.com/packstream/packstream/internal/overlay"
	"github.com/packstream/packstream/internal/webhook"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const (
	testWebhookSecret = "whsec_test"
	testJWTSecret     = "0123456789abcdef0123456789abcdef"
)

type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, _ *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics)
}

type staticChecker bool

func (c staticChecker) IsHealthy() bool { return bool(c) }

func sign(body []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type testEnv struct {
	server *httptest.Server
	pub    *capturingPublisher
	hub    *overlay.Hub
	jwt    *auth.JWTManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pub := &capturingPublisher{}
	ingress, err := webhook.NewIngress(webhook.Config{
		Secret:       testWebhookSecret,
		OrderTopic:   "orders.outcome",
		AccountTopic: "accounts.status",
	}, pub)
	if err != nil {
		t.Fatalf("ingress: %v", err)
	}

	keys := overlay.NewBcryptKeyStore()
	if err := keys.Add("k1", "CR1", "s3cret"); err != nil {
		t.Fatalf("keystore: %v", err)
	}
	hub := overlay.NewHub(time.Minute)
	gate := overlay.NewGate(keys, hub)

	jwtMgr, err := auth.NewJWTManager(testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Timeout: 30 * time.Second},
		Security: config.SecurityConfig{
			CORSOrigins:   []string{"*"},
			RateLimitReqs: 0, // disabled for tests
		},
	}

	router := NewRouter(cfg, Deps{
		Webhook: NewWebhookHandler(ingress),
		Overlay: NewOverlayHandler(gate),
		Health:  NewHealthHandler(map[string]ReadyChecker{"transport": staticChecker(true)}),
		Auth:    auth.NewMiddleware(jwtMgr),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, pub: pub, hub: hub, jwt: jwtMgr}
}

func (e *testEnv) postWebhook(t *testing.T, body []byte, header string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/stripe/webhook", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Stripe-Signature", header)
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestWebhookEndpointPublishesRecognizedEvent(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_1", "amount": 2500, "currency": "usd", "metadata": {"order_id": "O1"}}}
	}`)

	resp := env.postWebhook(t, body, sign(body, testWebhookSecret))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if env.pub.count() != 1 {
		t.Errorf("publishes = %d, want 1", env.pub.count())
	}
}

func TestWebhookEndpointRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	resp := env.postWebhook(t, body, sign(body, "whsec_wrong"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if env.pub.count() != 0 {
		t.Errorf("publishes = %d, want 0", env.pub.count())
	}
}

func TestWebhookEndpointAcknowledgesUnrecognizedType(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"id":"evt_2","type":"customer.created","data":{"object":{}}}`)
	resp := env.postWebhook(t, body, sign(body, testWebhookSecret))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unrecognized type", resp.StatusCode)
	}
	if env.pub.count() != 0 {
		t.Errorf("publishes = %d, want 0", env.pub.count())
	}
}

func TestOverlayEndpointAdmitsAndPushes(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/overlay/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ovk_k1.s3cret")); err != nil {
		t.Fatalf("send key: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.CreatorConnectionCount("CR1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOverlayEndpointRejectsUnknownKey(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/overlay/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ovk_bogus.key")); err != nil {
		t.Fatalf("send key: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read err = %v, want normal closure", err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		resp, err := env.server.Client().Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestHealthDegradedWhenCheckerUnhealthy(t *testing.T) {
	handler := NewHealthHandler(map[string]ReadyChecker{"transport": staticChecker(false)})
	rec := httptest.NewRecorder()
	handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCreatorMeRequiresCreatorToken(t *testing.T) {
	env := newTestEnv(t)

	// No token.
	resp, err := env.server.Client().Get(env.server.URL + "/api/v1/creator/me")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without token", resp.StatusCode)
	}

	// Creator token.
	token, err := env.jwt.GenerateToken("CR1", auth.RoleCreator, true)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/creator/me", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with creator token", resp.StatusCode)
	}

	var body struct {
		CreatorID string `json:"creator_id"`
		Onboarded bool   `json:"onboarded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.CreatorID != "CR1" || !body.Onboarded {
		t.Errorf("body = %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.server.Client().Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "overlay_connections") {
		t.Error("metrics output missing overlay_connections gauge")
	}
}
