// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package accounts mirrors provider-side connected-account onboarding state
// onto creator records. The creator records live in an external store; this
// package owns only the sync rules and the consuming handler.
package accounts

import (
	"context"
	"errors"
)

// Onboarding is the provider-reported onboarding state of a creator's
// connected account.
type Onboarding struct {
	StripeAccountID  string
	DetailsSubmitted bool
	ChargesEnabled   bool
}

// Ready reports whether the account can accept charges. A creator's
// storefront goes live only when both flags are set.
func (o Onboarding) Ready() bool {
	return o.DetailsSubmitted && o.ChargesEnabled
}

// ErrNotFound is returned by Store updates when no creator matches.
var ErrNotFound = errors.New("creator not found")

// Store is the external creator store collaborator. UpdateOnboarding
// overwrites the stored onboarding state unconditionally; account.updated
// events carry full state, so last-write-wins is correct.
type Store interface {
	UpdateOnboarding(ctx context.Context, creatorID string, state Onboarding) error
}
