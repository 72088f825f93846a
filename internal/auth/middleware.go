// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/packstream/packstream/internal/logging"
)

type contextKey string

// principalContextKey is the request context key for the authenticated
// principal.
const principalContextKey contextKey = "principal"

// Capability declares what an operation requires of its caller. Endpoints
// with their own authentication (webhook signatures, overlay session keys)
// use AllowAnonymous.
type Capability struct {
	AllowAnonymous      bool
	RequiresAuth        bool
	RequiresCreatorRole bool
	RequiresOnboarded   bool
}

// Predefined capabilities for route declarations.
var (
	// Anonymous admits any caller; the endpoint authenticates itself.
	Anonymous = Capability{AllowAnonymous: true}

	// Authenticated requires a valid bearer token.
	Authenticated = Capability{RequiresAuth: true}

	// Creator requires a valid token with the creator role.
	Creator = Capability{RequiresAuth: true, RequiresCreatorRole: true}

	// OnboardedCreator additionally requires completed provider onboarding.
	OnboardedCreator = Capability{RequiresAuth: true, RequiresCreatorRole: true, RequiresOnboarded: true}
)

// Middleware enforces capability requirements from bearer tokens.
type Middleware struct {
	jwt *JWTManager
}

// NewMiddleware creates the enforcement middleware.
func NewMiddleware(jwt *JWTManager) *Middleware {
	return &Middleware{jwt: jwt}
}

// Require wraps a handler with the given capability check. The resolved
// principal, if any, is stored on the request context.
func (m *Middleware) Require(cap Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cap.AllowAnonymous {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := m.principalFromRequest(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if cap.RequiresCreatorRole && !principal.IsCreator() {
				logging.Warn().Str("principal_id", principal.ID).Str("role", principal.Role).Msg("creator role required")
				writeAuthError(w, http.StatusForbidden, "creator role required")
				return
			}
			if cap.RequiresOnboarded && !principal.Onboarded {
				writeAuthError(w, http.StatusForbidden, "provider onboarding incomplete")
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

func (m *Middleware) principalFromRequest(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, ErrInvalidToken
	}
	return m.jwt.ValidateToken(token)
}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
