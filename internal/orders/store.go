// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package orders

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for single-instance deployments and
// development. Production deployments point the reconciler at the real
// order database instead.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Order
	bySecret map[string]string // client secret -> order ID
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Order),
		bySecret: make(map[string]string),
	}
}

// Put inserts or replaces an order, indexing it by client secret when set.
func (s *MemoryStore) Put(order *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *order
	s.byID[cp.ID] = &cp
	if cp.ClientSecret != "" {
		s.bySecret[cp.ClientSecret] = cp.ID
	}
}

// FindByID implements Store.
func (s *MemoryStore) FindByID(_ context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// FindByClientSecret implements Store.
func (s *MemoryStore) FindByClientSecret(ctx context.Context, clientSecret string) (*Order, error) {
	s.mu.RLock()
	id, ok := s.bySecret[clientSecret]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// UpdateStatus implements Store.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	return nil
}
