// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package overlay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnknownKey is returned by KeyStore.Resolve for unknown or revoked keys.
var ErrUnknownKey = errors.New("unknown overlay key")

// Overlay keys have the form "ovk_<keyID>.<secret>". The key ID locates the
// record; the secret is compared against the stored bcrypt hash so a leaked
// store never yields usable keys.
const keyPrefix = "ovk_"

type keyRecord struct {
	creatorID string
	hash      []byte
	revoked   bool
}

// BcryptKeyStore is an in-memory KeyStore holding bcrypt-hashed overlay keys.
// Keys are loaded at startup from configuration and may be revoked at
// runtime.
type BcryptKeyStore struct {
	mu   sync.RWMutex
	keys map[string]keyRecord
}

// NewBcryptKeyStore creates an empty key store.
func NewBcryptKeyStore() *BcryptKeyStore {
	return &BcryptKeyStore{keys: make(map[string]keyRecord)}
}

// Add registers a key for a creator. The secret is hashed immediately and
// never retained in plaintext.
func (s *BcryptKeyStore) Add(keyID, creatorID, secret string) error {
	if keyID == "" || creatorID == "" || secret == "" {
		return errors.New("key ID, creator ID and secret are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash overlay key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyID] = keyRecord{creatorID: creatorID, hash: hash}
	return nil
}

// Revoke marks a key as unusable. Resolving a revoked key returns
// ErrUnknownKey, indistinguishable from a key that never existed.
func (s *BcryptKeyStore) Revoke(keyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.keys[keyID]; ok {
		rec.revoked = true
		s.keys[keyID] = rec
	}
}

// Resolve implements KeyStore.
func (s *BcryptKeyStore) Resolve(_ context.Context, key string) (string, error) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return "", ErrUnknownKey
	}
	keyID, secret, ok := strings.Cut(rest, ".")
	if !ok {
		return "", ErrUnknownKey
	}

	s.mu.RLock()
	rec, found := s.keys[keyID]
	s.mu.RUnlock()

	if !found || rec.revoked {
		return "", ErrUnknownKey
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(secret)); err != nil {
		return "", ErrUnknownKey
	}
	return rec.creatorID, nil
}
