// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/packstream/packstream/internal/events"
	"github.com/packstream/packstream/internal/logging"
	"github.com/packstream/packstream/internal/metrics"
)

// Syncer consumes account status messages and applies them to creator
// records. Updates are idempotent overwrites, so redelivery is harmless.
type Syncer struct {
	store Store
}

// NewSyncer creates a syncer backed by the given creator store.
func NewSyncer(store Store) *Syncer {
	return &Syncer{store: store}
}

// Handler returns the Watermill consumer handler for the account queue.
func (s *Syncer) Handler() message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		status, err := events.UnmarshalAccountStatus(msg.Payload)
		if err != nil {
			// Malformed payload will never parse on redelivery; drop it.
			logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable account status")
			return nil
		}
		return s.Sync(msg.Context(), status)
	}
}

// Sync applies an account status update to the referenced creator.
//
// A status without a creator ID has no addressable target: the provider
// account was created outside checkout metadata, so the message is logged
// and dropped. A returned error means the store write failed transiently
// and the message should be redelivered.
func (s *Syncer) Sync(ctx context.Context, status *events.AccountStatus) error {
	if status.CreatorID == "" {
		logging.Warn().
			Str("stripe_account_id", status.StripeAccountID).
			Msg("account status without creator ID, dropping")
		metrics.AccountSyncsTotal.WithLabelValues("dropped").Inc()
		return nil
	}

	state := Onboarding{
		StripeAccountID:  status.StripeAccountID,
		DetailsSubmitted: status.DetailsSubmitted,
		ChargesEnabled:   status.ChargesEnabled,
	}

	if err := s.store.UpdateOnboarding(ctx, status.CreatorID, state); err != nil {
		if errors.Is(err, ErrNotFound) {
			logging.Warn().
				Str("creator_id", status.CreatorID).
				Str("stripe_account_id", status.StripeAccountID).
				Msg("account status references unknown creator, dropping")
			metrics.AccountSyncsTotal.WithLabelValues("dropped").Inc()
			return nil
		}
		return fmt.Errorf("update creator %s onboarding: %w", status.CreatorID, err)
	}

	metrics.AccountSyncsTotal.WithLabelValues("updated").Inc()
	logging.Info().
		Str("creator_id", status.CreatorID).
		Str("stripe_account_id", status.StripeAccountID).
		Bool("details_submitted", status.DetailsSubmitted).
		Bool("charges_enabled", status.ChargesEnabled).
		Bool("ready", state.Ready()).
		Msg("creator onboarding synced")

	return nil
}
