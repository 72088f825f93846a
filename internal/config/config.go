// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Package config loads layered configuration: built-in defaults, an optional
// YAML file, then environment variables. Required secrets and queue names
// are validated at load time; the process fails startup rather than running
// with silent defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	Queues   QueuesConfig   `koanf:"queues"`
	NATS     NATSConfig     `koanf:"nats"`
	Overlay  OverlayConfig  `koanf:"overlay"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment" validate:"oneof=development production"`
}

// WebhookConfig holds provider webhook settings. The signing secret is
// required: without it every webhook request must be rejected, so startup
// fails instead.
type WebhookConfig struct {
	Secret    string        `koanf:"secret" validate:"required"`
	Tolerance time.Duration `koanf:"tolerance"`
}

// QueuesConfig names the internal queues. Names are configuration-supplied,
// never hardcoded or defaulted silently.
type QueuesConfig struct {
	OrderTopic   string `koanf:"order_topic" validate:"required"`
	AccountTopic string `koanf:"account_topic" validate:"required"`
	NotifyTopic  string `koanf:"notify_topic" validate:"required"`
}

// NATSConfig holds transport settings. With Embedded set, an in-process
// JetStream server is started and URL is ignored.
type NATSConfig struct {
	URL         string        `koanf:"url"`
	Embedded    bool          `koanf:"embedded"`
	StoreDir    string        `koanf:"store_dir"`
	StreamName  string        `koanf:"stream_name"`
	DurableName string        `koanf:"durable_name"`
	QueueGroup  string        `koanf:"queue_group"`
	MaxDeliver  int           `koanf:"max_deliver"`
	AckWait     time.Duration `koanf:"ack_wait"`

	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// OverlayKeyConfig is one provisioned overlay key. The secret is hashed at
// startup and never kept in memory in plaintext after loading.
type OverlayKeyConfig struct {
	KeyID     string `koanf:"key_id" validate:"required"`
	CreatorID string `koanf:"creator_id" validate:"required"`
	Secret    string `koanf:"secret" validate:"required"`
}

// OverlayConfig holds overlay hub settings.
type OverlayConfig struct {
	SweepInterval time.Duration      `koanf:"sweep_interval"`
	Keys          []OverlayKeyConfig `koanf:"keys" validate:"dive"`
}

// SecurityConfig holds API authentication settings.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret" validate:"required,min=32"`
	SessionTimeout  time.Duration `koanf:"session_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults. Secrets and queue names have
// no defaults on purpose.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8085,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Webhook: WebhookConfig{
			Tolerance: 5 * time.Minute,
		},
		NATS: NATSConfig{
			URL:         "nats://127.0.0.1:4222",
			Embedded:    true,
			StoreDir:    "/data/nats/jetstream",
			StreamName:  "STOREFRONT_EVENTS",
			DurableName: "storefront-processor",
			QueueGroup:  "processors",
			MaxDeliver:  5,
			AckWait:     30 * time.Second,

			RouterRetryCount:           5,
			RouterRetryInitialInterval: time.Second,
			RouterPoisonQueueTopic:     "dlq.storefront",
			RouterCloseTimeout:         30 * time.Second,
		},
		Overlay: OverlayConfig{
			SweepInterval: 30 * time.Second,
		},
		Security: SecurityConfig{
			SessionTimeout:  24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the loaded configuration. Any failure here is fatal at
// startup.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := errors.As(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: field %s failed rule %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
