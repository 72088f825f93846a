// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package metrics provides Prometheus instrumentation for the payment
// pipeline: webhook ingress, queue transport, reconciliation, and overlay
// fan-out.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingress metrics
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of webhook events received, by event type and result",
		},
		[]string{"event_type", "result"}, // result: "published", "ignored", "rejected"
	)

	WebhookVerificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_verification_failures_total",
			Help: "Total number of webhook signature verification failures",
		},
	)

	WebhookMetadataWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_metadata_warnings_total",
			Help: "Total number of events with missing provider metadata fields",
		},
		[]string{"field"},
	)

	// Transport metrics
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_publishes_total",
			Help: "Total number of messages published, by topic",
		},
		[]string{"topic"},
	)

	// Reconciliation metrics
	OrderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total number of order status transitions applied",
		},
		[]string{"to_status"},
	)

	OrderReconcileDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_reconcile_drops_total",
			Help: "Messages dropped during reconciliation, by reason",
		},
		[]string{"reason"}, // "not_found", "terminal_conflict", "noop"
	)

	AccountSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_syncs_total",
			Help: "Account status sync attempts, by result",
		},
		[]string{"result"}, // "updated", "dropped"
	)

	// Overlay hub metrics
	OverlayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "overlay_connections",
			Help: "Current number of registered overlay connections",
		},
	)

	OverlayFanoutDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_fanout_deliveries_total",
			Help: "Overlay notification deliveries, by result",
		},
		[]string{"result"}, // "delivered", "skipped"
	)

	OverlaySweepRemovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overlay_sweep_removals_total",
			Help: "Dead connections removed by the periodic sweep",
		},
	)

	OverlayAdmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_admissions_total",
			Help: "Overlay session gate decisions",
		},
		[]string{"result"}, // "admitted", "rejected"
	)
)

// RecordPublish increments the publish counter for a topic.
func RecordPublish(topic string) {
	PublishesTotal.WithLabelValues(topic).Inc()
}

// RecordWebhookEvent increments the webhook event counter.
func RecordWebhookEvent(eventType, result string) {
	WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// RecordMetadataWarning increments the missing-metadata counter for a field.
func RecordMetadataWarning(field string) {
	WebhookMetadataWarnings.WithLabelValues(field).Inc()
}
