// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validEnv sets the minimum required configuration through the environment.
func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PACKSTREAM_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("PACKSTREAM_QUEUES_ORDER_TOPIC", "orders.outcome")
	t.Setenv("PACKSTREAM_QUEUES_ACCOUNT_TOPIC", "accounts.status")
	t.Setenv("PACKSTREAM_QUEUES_NOTIFY_TOPIC", "creators.notify")
	t.Setenv("PACKSTREAM_SECURITY_JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoadFromEnvironment(t *testing.T) {
	validEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Webhook.Secret != "whsec_test" {
		t.Errorf("webhook secret = %q", cfg.Webhook.Secret)
	}
	if cfg.Queues.OrderTopic != "orders.outcome" {
		t.Errorf("order topic = %q", cfg.Queues.OrderTopic)
	}
	// Defaults survive alongside env overrides.
	if cfg.Server.Port != 8085 {
		t.Errorf("port = %d, want default 8085", cfg.Server.Port)
	}
	if cfg.Overlay.SweepInterval != 30*time.Second {
		t.Errorf("sweep interval = %v, want default 30s", cfg.Overlay.SweepInterval)
	}
	if cfg.NATS.StreamName != "STOREFRONT_EVENTS" {
		t.Errorf("stream = %q", cfg.NATS.StreamName)
	}
}

func TestLoadFailsWithoutWebhookSecret(t *testing.T) {
	validEnv(t)
	t.Setenv("PACKSTREAM_WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected startup failure for missing webhook secret")
	}
}

func TestLoadFailsWithoutQueueNames(t *testing.T) {
	validEnv(t)
	t.Setenv("PACKSTREAM_QUEUES_NOTIFY_TOPIC", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected startup failure for missing queue name")
	}
}

func TestLoadFailsWithShortJWTSecret(t *testing.T) {
	validEnv(t)
	t.Setenv("PACKSTREAM_SECURITY_JWT_SECRET", "short")

	if _, err := Load(); err == nil {
		t.Fatal("expected startup failure for short JWT secret")
	}
}

func TestConfigFileLayering(t *testing.T) {
	validEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
  environment: production
overlay:
  sweep_interval: 10s
  keys:
    - key_id: k1
      creator_id: CR1
      secret: s3cret
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want file value 9090", cfg.Server.Port)
	}
	if cfg.Server.Environment != "production" {
		t.Errorf("environment = %q", cfg.Server.Environment)
	}
	if cfg.Overlay.SweepInterval != 10*time.Second {
		t.Errorf("sweep interval = %v", cfg.Overlay.SweepInterval)
	}
	if len(cfg.Overlay.Keys) != 1 || cfg.Overlay.Keys[0].CreatorID != "CR1" {
		t.Errorf("overlay keys = %+v", cfg.Overlay.Keys)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	validEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PACKSTREAM_SERVER_PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env value 7070", cfg.Server.Port)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	validEnv(t)
	t.Setenv("PACKSTREAM_SECURITY_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Security.CORSOrigins)
	}
}
