// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/packstream/packstream/internal/events"
	"github.com/packstream/packstream/internal/logging"
	"github.com/packstream/packstream/internal/metrics"
)

// ErrTerminalConflict is logged when a message would move an order out of
// one terminal state into another. Terminal state is sticky:
// first-terminal-wins.
var ErrTerminalConflict = errors.New("conflicting terminal transition")

// NotifyPublisher publishes overlay notifications to the notify queue.
// Satisfied by *eventbus.Publisher.
type NotifyPublisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// OrderSummary is the opaque payload pushed to the creator's overlay when an
// order is paid.
type OrderSummary struct {
	OrderID     string `json:"order_id"`
	CollectorID string `json:"collector_id,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Reconciler consumes payment outcome messages and applies them to order
// status. It is safe under at-least-once delivery: redeliveries of the same
// outcome are no-ops, and work is serialized per order so the terminal-state
// check and the status write are evaluated atomically.
type Reconciler struct {
	store       Store
	publisher   NotifyPublisher
	notifyTopic string
	locks       *keyMutex
}

// NewReconciler creates a reconciler. notifyTopic may be empty to disable
// overlay notifications (e.g. in a worker that only settles orders).
func NewReconciler(store Store, publisher NotifyPublisher, notifyTopic string) *Reconciler {
	return &Reconciler{
		store:       store,
		publisher:   publisher,
		notifyTopic: notifyTopic,
		locks:       newKeyMutex(),
	}
}

// Handler returns the Watermill consumer handler for the order outcome queue.
func (r *Reconciler) Handler() message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		outcome, err := events.UnmarshalPaymentOutcome(msg.Payload)
		if err != nil {
			// Malformed payload will never parse on redelivery; drop it.
			logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable payment outcome")
			return nil
		}
		return r.Reconcile(msg.Context(), outcome)
	}
}

// Reconcile applies a payment outcome to the referenced order.
//
// Transition rules:
//   - Succeeded -> Paid, Failed -> Failed, applied only from a non-terminal
//     status (Created or PaymentPending).
//   - Redelivery of the already-applied outcome is a no-op.
//   - A message targeting the other terminal status is dropped and logged as
//     an anomaly; terminal state is sticky.
//   - An unresolvable order is dropped, never retried.
//
// A returned error means the store write failed transiently and the message
// should be redelivered.
func (r *Reconciler) Reconcile(ctx context.Context, outcome *events.PaymentOutcome) error {
	order, err := r.resolve(ctx, outcome)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logging.Warn().
				Str("payment_intent_id", outcome.PaymentIntentID).
				Str("order_id", outcome.OrderID).
				Msg("payment outcome references unknown order, dropping")
			metrics.OrderReconcileDrops.WithLabelValues("not_found").Inc()
			return nil
		}
		return fmt.Errorf("resolve order: %w", err)
	}

	target := StatusFailed
	if outcome.Outcome == events.OutcomeSucceeded {
		target = StatusPaid
	}

	unlock := r.locks.Lock(order.ID)
	defer unlock()

	// Re-read under the lock so a concurrent delivery for the same order
	// can't race the terminal check.
	current, err := r.store.FindByID(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("reload order %s: %w", order.ID, err)
	}

	if current.Status.Terminal() {
		if current.Status == target {
			// Idempotent redelivery; notification republish is suppressed on
			// a no-op so a replayed message never re-fires the overlay push.
			metrics.OrderReconcileDrops.WithLabelValues("noop").Inc()
			return nil
		}
		logging.Error().
			Str("order_id", current.ID).
			Str("current_status", string(current.Status)).
			Str("target_status", string(target)).
			Msg(ErrTerminalConflict.Error())
		metrics.OrderReconcileDrops.WithLabelValues("terminal_conflict").Inc()
		return nil
	}

	if err := r.store.UpdateStatus(ctx, current.ID, target); err != nil {
		return fmt.Errorf("update order %s status: %w", current.ID, err)
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(target)).Inc()

	logging.Info().
		Str("order_id", current.ID).
		Str("status", string(target)).
		Msg("order reconciled")

	if target == StatusPaid {
		r.publishNotification(ctx, current)
	}

	return nil
}

// resolve locates the order by ID, falling back to the payment client secret
// when the provider omitted the order ID from metadata.
func (r *Reconciler) resolve(ctx context.Context, outcome *events.PaymentOutcome) (*Order, error) {
	if outcome.OrderID != "" {
		return r.store.FindByID(ctx, outcome.OrderID)
	}

	if outcome.ClientSecret == "" {
		return nil, ErrNotFound
	}

	logging.Debug().
		Str("payment_intent_id", outcome.PaymentIntentID).
		Msg("order ID missing from metadata, resolving by client secret")

	return r.store.FindByClientSecret(ctx, outcome.ClientSecret)
}

// publishNotification republishes an overlay notification for the owning
// creator. Notification delivery is best-effort: a publish failure is logged
// but does not fail the reconciliation, because the status write has already
// committed and a redelivery would be a no-op that never re-publishes.
func (r *Reconciler) publishNotification(ctx context.Context, order *Order) {
	if r.publisher == nil || r.notifyTopic == "" || order.CreatorID == "" {
		return
	}

	summary, err := json.Marshal(OrderSummary{
		OrderID:     order.ID,
		CollectorID: order.CollectorID,
		Amount:      order.Amount,
		Currency:    order.Currency,
	})
	if err != nil {
		logging.Error().Err(err).Str("order_id", order.ID).Msg("failed to marshal order summary")
		return
	}

	notification := events.NewOverlayNotification(order.CreatorID, summary)
	data, err := events.Marshal(notification)
	if err != nil {
		logging.Error().Err(err).Str("order_id", order.ID).Msg("failed to marshal overlay notification")
		return
	}

	msg := message.NewMessage(notification.EventID, data)
	if err := r.publisher.Publish(ctx, r.notifyTopic, msg); err != nil {
		logging.Warn().Err(err).
			Str("order_id", order.ID).
			Str("creator_id", order.CreatorID).
			Msg("overlay notification publish failed, order remains settled")
	}
}
