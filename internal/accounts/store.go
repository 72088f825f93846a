// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package accounts

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for single-instance deployments and
// development. It creates creator records on first update; the real creator
// database enforces existence instead.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]Onboarding
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]Onboarding)}
}

// UpdateOnboarding implements Store with last-write-wins semantics.
func (s *MemoryStore) UpdateOnboarding(_ context.Context, creatorID string, state Onboarding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[creatorID] = state
	return nil
}

// Onboarding returns the stored state for a creator.
func (s *MemoryStore) Onboarding(creatorID string) (Onboarding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[creatorID]
	return state, ok
}
