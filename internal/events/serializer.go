// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package events

import (
	"fmt"

	"github.com/goccy/go-json"
)

// validatable is implemented by all queue message types.
type validatable interface {
	Validate() error
}

// Marshal validates and encodes a queue message to JSON bytes.
func Marshal(m validatable) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	return data, nil
}

// UnmarshalPaymentOutcome decodes JSON bytes into a payment outcome message.
func UnmarshalPaymentOutcome(data []byte) (*PaymentOutcome, error) {
	var m PaymentOutcome
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal payment outcome: %w", err)
	}
	return &m, nil
}

// UnmarshalAccountStatus decodes JSON bytes into an account status message.
func UnmarshalAccountStatus(data []byte) (*AccountStatus, error) {
	var m AccountStatus
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal account status: %w", err)
	}
	return &m, nil
}

// UnmarshalOverlayNotification decodes JSON bytes into an overlay notification.
func UnmarshalOverlayNotification(data []byte) (*OverlayNotification, error) {
	var m OverlayNotification
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal overlay notification: %w", err)
	}
	return &m, nil
}
