// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package api wires the HTTP surface: the provider webhook endpoint, the
// overlay WebSocket endpoint, health probes, and Prometheus metrics. The
// webhook and overlay endpoints authenticate themselves (signature, session
// key); creator endpoints require a bearer token.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packstream/packstream/internal/auth"
	"github.com/packstream/packstream/internal/config"
)

// Deps carries the collaborators the router needs.
type Deps struct {
	Webhook *WebhookHandler
	Overlay *OverlayHandler
	Health  *HealthHandler
	Auth    *auth.Middleware
}

// NewRouter builds the chi router with the full middleware stack.
func NewRouter(cfg *config.Config, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.Timeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Security.RateLimitReqs > 0 {
		window := cfg.Security.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(cfg.Security.RateLimitReqs, window))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/overlay/ws", deps.Overlay.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/stripe/webhook", deps.Webhook.ServeHTTP)

		r.Get("/health", deps.Health.Health)
		r.Get("/health/live", deps.Health.Live)
		r.Get("/health/ready", deps.Health.Ready)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Require(auth.Creator))
			r.Get("/creator/me", creatorMe)
		})
	})

	return r
}
