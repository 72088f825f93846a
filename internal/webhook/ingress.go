// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package webhook translates provider webhook events into internal queue
// messages. The ingress verifies the request signature, inspects the event
// type, and publishes exactly one message per recognized event; unrecognized
// event types are acknowledged without a publish so the provider never
// retries them.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/packstream/packstream/internal/events"
	"github.com/packstream/packstream/internal/logging"
	"github.com/packstream/packstream/internal/metrics"
)

// Provider event types the ingress recognizes.
const (
	EventAccountUpdated       = "account.updated"
	EventPaymentIntentSuccess = "payment_intent.succeeded"
	EventPaymentIntentFailed  = "payment_intent.payment_failed"
)

var (
	// ErrSecretNotConfigured means the signing secret is unset. Requests
	// are rejected without attempting verification.
	ErrSecretNotConfigured = errors.New("webhook signing secret not configured")

	// ErrMalformedEvent means the body passed signature verification but is
	// not a decodable provider event.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Publisher is the transport side of the ingress. Satisfied by
// *eventbus.Publisher.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// Config holds the ingress settings. Topics are configuration-supplied,
// never defaulted: a missing queue name is a startup failure.
type Config struct {
	Secret       string
	OrderTopic   string
	AccountTopic string
	Tolerance    time.Duration
}

// Result reports what the ingress did with a verified event.
type Result struct {
	EventType string
	Published bool
}

// Ingress verifies and dispatches provider webhook events.
type Ingress struct {
	secret       []byte
	tolerance    time.Duration
	publisher    Publisher
	orderTopic   string
	accountTopic string
	now          func() time.Time
}

// NewIngress creates an ingress. The secret may be empty (requests will be
// rejected with ErrSecretNotConfigured), but topics are required up front.
func NewIngress(cfg Config, publisher Publisher) (*Ingress, error) {
	if cfg.OrderTopic == "" || cfg.AccountTopic == "" {
		return nil, errors.New("webhook ingress requires order and account topics")
	}
	if publisher == nil {
		return nil, errors.New("webhook ingress requires a publisher")
	}

	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	return &Ingress{
		secret:       []byte(cfg.Secret),
		tolerance:    tolerance,
		publisher:    publisher,
		orderTopic:   cfg.OrderTopic,
		accountTopic: cfg.AccountTopic,
		now:          time.Now,
	}, nil
}

// event is the provider envelope. Only the fields the ingress dispatches on
// are decoded; the object payload stays raw until the type is known.
type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type paymentIntent struct {
	ID                   string            `json:"id"`
	Amount               int64             `json:"amount"`
	ApplicationFeeAmount int64             `json:"application_fee_amount"`
	Currency             string            `json:"currency"`
	LatestCharge         string            `json:"latest_charge"`
	PaymentMethod        string            `json:"payment_method"`
	ClientSecret         string            `json:"client_secret"`
	Created              int64             `json:"created"`
	Metadata             map[string]string `json:"metadata"`
}

type account struct {
	ID               string            `json:"id"`
	DetailsSubmitted bool              `json:"details_submitted"`
	ChargesEnabled   bool              `json:"charges_enabled"`
	Metadata         map[string]string `json:"metadata"`
}

// Handle verifies the raw request body against the signature header and
// dispatches the event. Exactly one publish happens per recognized event.
//
// Error returns map to HTTP status at the API layer: ErrSecretNotConfigured,
// ErrVerification and ErrMalformedEvent are 400s; anything else is a publish
// failure and a 500 so the provider retries.
func (i *Ingress) Handle(ctx context.Context, body []byte, signatureHeader string) (Result, error) {
	if len(i.secret) == 0 {
		return Result{}, ErrSecretNotConfigured
	}

	if err := verifySignature(body, signatureHeader, i.secret, i.tolerance, i.now()); err != nil {
		metrics.WebhookVerificationFailures.Inc()
		return Result{}, err
	}

	var evt event
	if err := json.Unmarshal(body, &evt); err != nil || evt.Type == "" {
		metrics.RecordWebhookEvent("malformed", "rejected")
		return Result{}, ErrMalformedEvent
	}

	switch evt.Type {
	case EventAccountUpdated:
		return i.handleAccountUpdated(ctx, &evt)
	case EventPaymentIntentSuccess:
		return i.handlePaymentIntent(ctx, &evt, events.OutcomeSucceeded)
	case EventPaymentIntentFailed:
		return i.handlePaymentIntent(ctx, &evt, events.OutcomeFailed)
	default:
		// Acknowledged without a publish; a non-200 here would make the
		// provider retry event types we will never consume.
		logging.Debug().Str("event_type", evt.Type).Str("provider_event_id", evt.ID).Msg("ignoring unrecognized webhook event type")
		metrics.RecordWebhookEvent(evt.Type, "ignored")
		return Result{EventType: evt.Type, Published: false}, nil
	}
}

func (i *Ingress) handlePaymentIntent(ctx context.Context, evt *event, kind events.OutcomeKind) (Result, error) {
	var pi paymentIntent
	if err := json.Unmarshal(evt.Data.Object, &pi); err != nil {
		metrics.RecordWebhookEvent(evt.Type, "rejected")
		return Result{}, ErrMalformedEvent
	}

	out := events.NewPaymentOutcome(kind)
	out.PaymentIntentID = pi.ID
	out.OrderID = i.metaField(pi.Metadata, "order_id", evt.ID)
	out.CollectorID = i.metaField(pi.Metadata, "collector_id", evt.ID)
	out.Amount = pi.Amount
	out.ApplicationFee = pi.ApplicationFeeAmount
	out.Currency = pi.Currency
	out.LatestChargeID = pi.LatestCharge
	out.PaymentMethodID = pi.PaymentMethod
	out.ClientSecret = pi.ClientSecret
	out.CreatedOn = time.Unix(pi.Created, 0).UTC()

	if err := i.publish(ctx, i.orderTopic, out); err != nil {
		metrics.RecordWebhookEvent(evt.Type, "rejected")
		return Result{}, fmt.Errorf("publish payment outcome: %w", err)
	}

	logging.Info().
		Str("event_type", evt.Type).
		Str("payment_intent_id", pi.ID).
		Str("order_id", out.OrderID).
		Str("outcome", string(kind)).
		Msg("payment outcome published")
	metrics.RecordWebhookEvent(evt.Type, "published")
	return Result{EventType: evt.Type, Published: true}, nil
}

func (i *Ingress) handleAccountUpdated(ctx context.Context, evt *event) (Result, error) {
	var acct account
	if err := json.Unmarshal(evt.Data.Object, &acct); err != nil {
		metrics.RecordWebhookEvent(evt.Type, "rejected")
		return Result{}, ErrMalformedEvent
	}

	status := events.NewAccountStatus()
	status.StripeAccountID = acct.ID
	status.CreatorID = i.metaField(acct.Metadata, "creator_id", evt.ID)
	status.DetailsSubmitted = acct.DetailsSubmitted
	status.ChargesEnabled = acct.ChargesEnabled

	if err := i.publish(ctx, i.accountTopic, status); err != nil {
		metrics.RecordWebhookEvent(evt.Type, "rejected")
		return Result{}, fmt.Errorf("publish account status: %w", err)
	}

	logging.Info().
		Str("event_type", evt.Type).
		Str("stripe_account_id", acct.ID).
		Str("creator_id", status.CreatorID).
		Msg("account status published")
	metrics.RecordWebhookEvent(evt.Type, "published")
	return Result{EventType: evt.Type, Published: true}, nil
}

type marshalable interface {
	Validate() error
}

func (i *Ingress) publish(ctx context.Context, topic string, m marshalable) error {
	data, err := events.Marshal(m)
	if err != nil {
		return err
	}
	return i.publisher.Publish(ctx, topic, message.NewMessage(watermillUUID(m), data))
}

// watermillUUID reuses the event ID as the transport message UUID so
// JetStream deduplication keys on the logical event.
func watermillUUID(m marshalable) string {
	switch v := m.(type) {
	case *events.PaymentOutcome:
		return v.EventID
	case *events.AccountStatus:
		return v.EventID
	case *events.OverlayNotification:
		return v.EventID
	default:
		return ""
	}
}

// metaField extracts a metadata key, tolerating an absent map or key. An
// empty result is a data-quality warning, never a fatal error.
func (i *Ingress) metaField(meta map[string]string, key, providerEventID string) string {
	value := meta[key]
	if value == "" {
		logging.Warn().
			Str("field", key).
			Str("provider_event_id", providerEventID).
			Msg("webhook event metadata field missing")
		metrics.RecordMetadataWarning(key)
	}
	return value
}
