// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package orders applies payment outcomes to order status. The order records
// themselves live in an external store; this package owns only the status
// transition rules and the reconciling consumer.
package orders

import (
	"context"
	"errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusCreated is the initial state after checkout starts.
	StatusCreated Status = "created"
	// StatusPaymentPending means a payment intent exists but has no outcome.
	StatusPaymentPending Status = "payment_pending"
	// StatusPaid is terminal: the payment succeeded.
	StatusPaid Status = "paid"
	// StatusFailed is terminal: the payment failed permanently.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// Order is the slice of the externally stored order record the reconciler
// needs. The store owns persistence; this package only reads identity and
// status and writes status.
type Order struct {
	ID              string
	CreatorID       string
	CollectorID     string
	PaymentIntentID string
	ClientSecret    string
	Amount          int64
	Currency        string
	Status          Status
}

// ErrNotFound is returned by Store lookups when no order matches.
var ErrNotFound = errors.New("order not found")

// Store is the external order store collaborator.
//
// FindByClientSecret is the fallback lookup used when the provider omitted
// the order ID from payment intent metadata; the store indexes orders by the
// payment client secret recorded at intent creation.
type Store interface {
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByClientSecret(ctx context.Context, clientSecret string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
