// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/packstream/packstream/internal/events"
	"github.com/packstream/packstream/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const testSecret = "whsec_test"

// sign produces a provider-style signature header for a body.
func sign(body []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

type capturingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	failErr  error
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, msg *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, msg.Payload)
	return nil
}

func newTestIngress(t *testing.T, pub Publisher) *Ingress {
	t.Helper()
	ing, err := NewIngress(Config{
		Secret:       testSecret,
		OrderTopic:   "orders.outcome",
		AccountTopic: "accounts.status",
	}, pub)
	if err != nil {
		t.Fatalf("new ingress: %v", err)
	}
	return ing
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	tests := []struct {
		name   string
		header string
		wantOK bool
	}{
		{"valid", sign(body, testSecret, now), true},
		{"wrong secret", sign(body, "whsec_other", now), false},
		{"stale timestamp", sign(body, testSecret, now.Add(-10*time.Minute)), false},
		{"future beyond tolerance", sign(body, testSecret, now.Add(10*time.Minute)), false},
		{"within tolerance", sign(body, testSecret, now.Add(-2*time.Minute)), true},
		{"rotation second v1 valid", fmt.Sprintf("%s,v1=%s", sign(body, testSecret, now), "00ff"), true},
		{"missing timestamp", "v1=deadbeef", false},
		{"missing digest", fmt.Sprintf("t=%d", now.Unix()), false},
		{"garbage", "not a header", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySignature(body, tt.header, []byte(testSecret), DefaultTolerance, now)
			if tt.wantOK && err != nil {
				t.Errorf("verify failed: %v", err)
			}
			if !tt.wantOK && !errors.Is(err, ErrVerification) {
				t.Errorf("err = %v, want ErrVerification", err)
			}
		})
	}
}

func TestHandleRejectsWithoutSecret(t *testing.T) {
	ing, err := NewIngress(Config{
		OrderTopic:   "orders.outcome",
		AccountTopic: "accounts.status",
	}, &capturingPublisher{})
	if err != nil {
		t.Fatalf("new ingress: %v", err)
	}

	_, err = ing.Handle(context.Background(), []byte(`{}`), "t=1,v1=00")
	if !errors.Is(err, ErrSecretNotConfigured) {
		t.Errorf("err = %v, want ErrSecretNotConfigured", err)
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	pub := &capturingPublisher{}
	ing := newTestIngress(t, pub)

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	_, err := ing.Handle(context.Background(), body, sign(body, "whsec_wrong", time.Now()))
	if !errors.Is(err, ErrVerification) {
		t.Errorf("err = %v, want ErrVerification", err)
	}
	if len(pub.topics) != 0 {
		t.Errorf("publishes = %d, want 0 on rejected request", len(pub.topics))
	}
}

func TestHandleRejectsMalformedBody(t *testing.T) {
	pub := &capturingPublisher{}
	ing := newTestIngress(t, pub)

	body := []byte(`{not json`)
	_, err := ing.Handle(context.Background(), body, sign(body, testSecret, time.Now()))
	if !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}
}

func TestHandlePaymentSucceeded(t *testing.T) {
	pub := &capturingPublisher{}
	ing := newTestIngress(t, pub)

	body := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_1",
			"amount": 2500,
			"application_fee_amount": 250,
			"currency": "usd",
			"latest_charge": "ch_1",
			"payment_method": "pm_1",
			"client_secret": "pi_1_secret_x",
			"created": 1756700000,
			"metadata": {"order_id": "O1", "collector_id": "C1"}
		}}
	}`)

	res, err := ing.Handle(context.Background(), body, sign(body, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.Published {
		t.Error("result not marked published")
	}
	if len(pub.topics) != 1 || pub.topics[0] != "orders.outcome" {
		t.Fatalf("topics = %v, want exactly one publish to orders.outcome", pub.topics)
	}

	out, err := events.UnmarshalPaymentOutcome(pub.payloads[0])
	if err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if out.Outcome != events.OutcomeSucceeded {
		t.Errorf("outcome = %q, want succeeded", out.Outcome)
	}
	if out.PaymentIntentID != "pi_1" || out.OrderID != "O1" || out.CollectorID != "C1" {
		t.Errorf("identifiers = %q/%q/%q", out.PaymentIntentID, out.OrderID, out.CollectorID)
	}
	if out.Amount != 2500 || out.ApplicationFee != 250 || out.Currency != "usd" {
		t.Errorf("amounts = %d/%d/%q", out.Amount, out.ApplicationFee, out.Currency)
	}
	if out.CreatedOn.Unix() != 1756700000 {
		t.Errorf("created_on = %v", out.CreatedOn)
	}
	if out.EventID == "" {
		t.Error("event ID not assigned")
	}
}

func TestHandlePaymentFailed(t *testing.T) {
	pub := &capturingPublisher{}
	ing := newTestIngress(t, pub)

	body := []byte(`{
		"id": "evt_2",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_2", "amount": 900, "currency": "eur", "metadata": {"order_id": "O2"}}}
	}`)

	if _, err := ing.Handle(context.Background(), body, sign(body, testSecret, time.Now())); err != nil {
		t.Fatalf("handle: %v", err)
	}

	out, err := events.UnmarshalPaymentOutcome(pub.payloads[0])
	if err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if out.Outcome != events.OutcomeFailed {
		t.Errorf("outcome = %q, want failed", out.Outcome)
	}
}

func TestHandleAccountUpdated(t *testing.T) {
	pub := &capturingPublisher{}
	ing := newTestIngress(t, pub)

	body := []byte(`{
		"id": "evt_3",
		"type": "account.updated",
		"data": {"object": {
			"id": "acct_1",
			"details_submitted": true,
			"charges_enabled": true,
			"metadata": {"creator_id": "CR1"}
		}}
	}`)

	res, err := ing.Handle(context.Background(), body, sign(body, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.Published {
		t.Error("result not marked published")
	}
	if len(pub.topics) != 1 || pub.topics[0] != "accounts.status" {
		t.Fatalf("topics = %v, want exactly one publish to accounts.status", pub.topics)
	}

	status, err := events.UnmarshalAccountStatus(pub.payloads[0])
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.StripeAccountID != "acct_1" || status.CreatorID != "CR1" {
		t.Errorf("identifiers = %q/%q", status.StripeAccountID, status.CreatorID)
	}
	if !status.DetailsSubmitted || !status.ChargesEnabled {
		t.Errorf("flags = %v/%v, want true/true", status.DetailsSubmitted, status.ChargesEnabled)
	}
}

func TestHandleUnrecognizedTypeAcknowledgedWithoutPublish(t *testing.T) {
	pub := &capturingPublisher{}
	ing := newTestIngress(t, pub)

	body := []byte(`{"id":"evt_4","type":"charge.refunded","data":{"object":{}}}`)
	res, err := ing.Handle(context.Background(), body, sign(body, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Published {
		t.Error("unrecognized event must not publish")
	}
	if len(pub.topics) != 0 {
		t.Errorf("publishes = %d, want 0", len(pub.topics))
	}
}

func TestHandleMissingMetadataStillPublishes(t *testing.T) {
	pub := &capturingPublisher{}
	ing := newTestIngress(t, pub)

	// No metadata map at all.
	body := []byte(`{
		"id": "evt_5",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_5", "amount": 100, "currency": "usd", "client_secret": "pi_5_secret"}}
	}`)

	res, err := ing.Handle(context.Background(), body, sign(body, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.Published {
		t.Error("metadata-incomplete event must still publish")
	}

	out, err := events.UnmarshalPaymentOutcome(pub.payloads[0])
	if err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if out.OrderID != "" || out.CollectorID != "" {
		t.Errorf("metadata fields = %q/%q, want empty placeholders", out.OrderID, out.CollectorID)
	}
	if out.ClientSecret != "pi_5_secret" {
		t.Errorf("client secret = %q", out.ClientSecret)
	}
}

func TestHandlePublishFailurePropagates(t *testing.T) {
	pub := &capturingPublisher{failErr: errors.New("broker down")}
	ing := newTestIngress(t, pub)

	body := []byte(`{"id":"evt_6","type":"payment_intent.succeeded","data":{"object":{"id":"pi_6"}}}`)
	if _, err := ing.Handle(context.Background(), body, sign(body, testSecret, time.Now())); err == nil {
		t.Fatal("expected publish failure to propagate so the provider retries")
	}
}

func TestNewIngressRequiresTopics(t *testing.T) {
	if _, err := NewIngress(Config{Secret: testSecret}, &capturingPublisher{}); err == nil {
		t.Fatal("expected error for missing topics")
	}
}
