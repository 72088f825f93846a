// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package events defines the canonical message schemas carried on the
// internal queues: payment outcomes, creator account status updates, and
// overlay notifications. Messages are created by the webhook ingress,
// consumed by exactly one consumer group, and never persisted.
package events

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// SchemaVersion is the current event schema version.
// Increment this when making breaking changes to the message types.
const SchemaVersion = 1

// OutcomeKind is the terminal result of a payment attempt as reported by
// the provider.
type OutcomeKind string

const (
	// OutcomeSucceeded means the payment intent completed successfully.
	OutcomeSucceeded OutcomeKind = "succeeded"
	// OutcomeFailed means the payment intent failed permanently.
	OutcomeFailed OutcomeKind = "failed"
)

// Valid reports whether the kind is a known outcome.
func (k OutcomeKind) Valid() bool {
	return k == OutcomeSucceeded || k == OutcomeFailed
}

// PaymentOutcome is the internal message produced for
// payment_intent.succeeded and payment_intent.payment_failed events.
//
// OrderID and CollectorID are sourced from provider-side metadata and may be
// empty when the provider omitted them. Empty is a valid value; consumers
// must tolerate it (the reconciler falls back to a client-secret lookup).
type PaymentOutcome struct {
	SchemaVersion int `json:"schema_version,omitempty"`

	EventID         string      `json:"event_id"`
	PaymentIntentID string      `json:"payment_intent_id"`
	OrderID         string      `json:"order_id,omitempty"`
	CollectorID     string      `json:"collector_id,omitempty"`
	Amount          int64       `json:"amount"`
	ApplicationFee  int64       `json:"application_fee_amount,omitempty"`
	Currency        string      `json:"currency"`
	LatestChargeID  string      `json:"latest_charge_id,omitempty"`
	PaymentMethodID string      `json:"payment_method_id,omitempty"`
	ClientSecret    string      `json:"client_secret,omitempty"`
	CreatedOn       time.Time   `json:"created_on"`
	Outcome         OutcomeKind `json:"outcome"`
}

// AccountStatus is the internal message produced for account.updated events.
// CreatorID comes from provider metadata and may be empty; the syncer drops
// such messages because there is no addressable target.
type AccountStatus struct {
	SchemaVersion int `json:"schema_version,omitempty"`

	EventID          string `json:"event_id"`
	StripeAccountID  string `json:"stripe_account_id"`
	CreatorID        string `json:"creator_id,omitempty"`
	DetailsSubmitted bool   `json:"details_submitted"`
	ChargesEnabled   bool   `json:"charges_enabled"`
}

// OverlayNotification carries an opaque order summary to a creator's
// connected overlay clients. The payload is delivered verbatim as JSON;
// the hub does not interpret it.
type OverlayNotification struct {
	SchemaVersion int `json:"schema_version,omitempty"`

	EventID   string          `json:"event_id"`
	CreatorID string          `json:"creator_id"`
	Payload   json.RawMessage `json:"payload"`
}

// NewPaymentOutcome creates a payment outcome message with a unique event ID
// and the current schema version.
func NewPaymentOutcome(kind OutcomeKind) *PaymentOutcome {
	return &PaymentOutcome{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		Outcome:       kind,
	}
}

// NewAccountStatus creates an account status message with a unique event ID
// and the current schema version.
func NewAccountStatus() *AccountStatus {
	return &AccountStatus{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
	}
}

// NewOverlayNotification creates a notification for the given creator.
func NewOverlayNotification(creatorID string, payload json.RawMessage) *OverlayNotification {
	return &OverlayNotification{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		CreatorID:     creatorID,
		Payload:       payload,
	}
}

// Validation errors.
var (
	ErrMissingEventID       = errors.New("event ID is required")
	ErrMissingPaymentIntent = errors.New("payment intent ID is required")
	ErrInvalidOutcome       = errors.New("outcome must be succeeded or failed")
	ErrMissingAccountID     = errors.New("stripe account ID is required")
	ErrMissingCreatorID     = errors.New("creator ID is required")
)

// Validate checks required fields. OrderID and CollectorID are deliberately
// not required; empty metadata is a data-quality warning, not an error.
func (m *PaymentOutcome) Validate() error {
	if m.EventID == "" {
		return ErrMissingEventID
	}
	if m.PaymentIntentID == "" {
		return ErrMissingPaymentIntent
	}
	if !m.Outcome.Valid() {
		return ErrInvalidOutcome
	}
	return nil
}

// Validate checks required fields. CreatorID is deliberately not required;
// the syncer handles the empty case.
func (m *AccountStatus) Validate() error {
	if m.EventID == "" {
		return ErrMissingEventID
	}
	if m.StripeAccountID == "" {
		return ErrMissingAccountID
	}
	return nil
}

// Validate checks required fields.
func (m *OverlayNotification) Validate() error {
	if m.EventID == "" {
		return ErrMissingEventID
	}
	if m.CreatorID == "" {
		return ErrMissingCreatorID
	}
	return nil
}
