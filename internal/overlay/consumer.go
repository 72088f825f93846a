// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package overlay

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/packstream/packstream/internal/events"
	"github.com/packstream/packstream/internal/logging"
)

// NotifyHandler returns the consumer handler for the creator-notify queue.
// Delivery is fire-and-forget: fan-out never fails the message, so the queue
// never retries a notification whose creator simply had no open overlay.
func NotifyHandler(hub *Hub) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		n, err := events.UnmarshalOverlayNotification(msg.Payload)
		if err != nil {
			logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable overlay notification")
			return nil
		}
		hub.Fanout(n)
		return nil
	}
}
