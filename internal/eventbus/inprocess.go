// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// InProcessPubSub is a Go channel backed publisher/subscriber pair for
// single-process deployments and tests. It preserves the transport contract
// the consumers are written against: at-least-once semantics from the
// consumer's point of view (the router's retry middleware redelivers on
// handler error), no cross-queue ordering guarantee.
type InProcessPubSub struct {
	pubsub *gochannel.GoChannel
}

// NewInProcessPubSub creates an in-process pub/sub with a small buffer so
// publishers don't block on slow consumers.
func NewInProcessPubSub(logger watermill.LoggerAdapter) *InProcessPubSub {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	return &InProcessPubSub{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger),
	}
}

// Publisher returns the Watermill publisher side.
func (p *InProcessPubSub) Publisher() message.Publisher {
	return p.pubsub
}

// Subscriber returns the Watermill subscriber side.
func (p *InProcessPubSub) Subscriber() message.Subscriber {
	return p.pubsub
}

// Close shuts down the pub/sub and closes all subscription channels.
func (p *InProcessPubSub) Close() error {
	return p.pubsub.Close()
}
