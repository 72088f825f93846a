// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package auth authenticates API callers and gates operations on declared
// capability requirements. Creator-facing operations carry a role and an
// onboarding requirement; the webhook and overlay endpoints authenticate by
// other means (signature, session key) and stay anonymous here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleCreator marks a principal who owns a storefront.
const RoleCreator = "creator"

// Claims are the JWT claims carried by API tokens.
type Claims struct {
	Role      string `json:"role"`
	Onboarded bool   `json:"onboarded"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller derived from validated claims.
type Principal struct {
	ID        string
	Role      string
	Onboarded bool
}

// IsCreator reports whether the principal holds the creator role.
func (p Principal) IsCreator() bool {
	return p.Role == RoleCreator
}

// ErrInvalidToken covers every token validation failure surfaced to callers.
var ErrInvalidToken = errors.New("invalid token")

// JWTManager creates and validates API tokens. Tokens are signed with
// HMAC-SHA256; the validator rejects any other algorithm.
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager creates a token manager. The secret is required and should
// be at least 32 bytes.
func NewJWTManager(secret string, timeout time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required but was empty")
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), timeout: timeout}, nil
}

// GenerateToken signs a token for the given principal.
func (m *JWTManager) GenerateToken(principalID, role string, onboarded bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role:      role,
		Onboarded: onboarded,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token and returns the principal it asserts.
func (m *JWTManager) ValidateToken(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{
		ID:        claims.Subject,
		Role:      claims.Role,
		Onboarded: claims.Onboarded,
	}, nil
}
