// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/packstream/packstream/internal/auth"
	"github.com/packstream/packstream/internal/logging"
	"github.com/packstream/packstream/internal/overlay"
	"github.com/packstream/packstream/internal/webhook"
)

// maxWebhookBody bounds the provider request body. Stripe events stay well
// under this.
const maxWebhookBody = 1 << 20 // 1 MB

// signatureHeader is the provider's signature header name.
const signatureHeader = "Stripe-Signature"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WebhookHandler terminates the provider webhook endpoint.
type WebhookHandler struct {
	ingress *webhook.Ingress
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(ingress *webhook.Ingress) *WebhookHandler {
	return &WebhookHandler{ingress: ingress}
}

// ServeHTTP reads the raw body and hands it to the ingress. Verification
// failures are 400s with no internal detail; publish failures are 500s so
// the provider retries.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	result, err := h.ingress.Handle(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrSecretNotConfigured),
			errors.Is(err, webhook.ErrVerification),
			errors.Is(err, webhook.ErrMalformedEvent):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "webhook rejected"})
		default:
			logging.Error().Err(err).Msg("webhook event processing failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"published": result.Published,
	})
}

// OverlayHandler upgrades overlay connections and hands them to the gate.
type OverlayHandler struct {
	gate     *overlay.Gate
	upgrader websocket.Upgrader
}

// NewOverlayHandler creates the handler. Origin checking is left to the CORS
// layer; overlay keys are the real admission control.
func NewOverlayHandler(gate *overlay.Gate) *OverlayHandler {
	return &OverlayHandler{
		gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades and admits. Admit owns the connection from here on;
// rejected connections are already closed when it returns.
func (h *OverlayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("overlay upgrade failed")
		return
	}
	if _, err := h.gate.Admit(r.Context(), conn); err != nil {
		logging.Debug().Err(err).Msg("overlay session not admitted")
	}
}

// ReadyChecker reports whether a dependency is ready to serve.
type ReadyChecker interface {
	IsHealthy() bool
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	startedAt time.Time
	checkers  map[string]ReadyChecker
}

// NewHealthHandler creates the handler. Checkers gate readiness only;
// liveness always succeeds while the process serves.
func NewHealthHandler(checkers map[string]ReadyChecker) *HealthHandler {
	return &HealthHandler{startedAt: time.Now(), checkers: checkers}
}

// Health reports overall status with per-dependency detail.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	deps := make(map[string]string, len(h.checkers))
	healthy := true
	for name, c := range h.checkers {
		if c.IsHealthy() {
			deps[name] = "ok"
		} else {
			deps[name] = "unavailable"
			healthy = false
		}
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":         state,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"dependencies":   deps,
	})
}

// Live is the liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is the readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.checkers {
		if !c.IsHealthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// creatorMe returns the authenticated creator's identity and onboarding
// state as asserted by their token.
func creatorMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"creator_id": principal.ID,
		"role":       principal.Role,
		"onboarded":  principal.Onboarded,
	})
}
