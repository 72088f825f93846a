// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package eventbus provides the named-queue message transport: Watermill
// publishers and subscribers over NATS JetStream for multi-process
// deployments, an in-process Go channel pub/sub for single-process and test
// use, and a router with retry, panic recovery, and poison queue handling.
//
// Delivery is at-least-once. Handlers may see the same logical event more
// than once and must be idempotent; there is no ordering guarantee across
// or within queues.
package eventbus

import "errors"

// ErrPublisherClosed is returned when publishing after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrStreamNotFound is returned when the JetStream stream doesn't exist.
var ErrStreamNotFound = errors.New("stream not found")

// ErrInvalidConfig is returned when configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")
