// Packstream - Creator Storefront Payments and Overlay Notifications
// Copyright 2026 Packstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/packstream/packstream

// Command server runs the Packstream payment pipeline: the provider webhook
// endpoint, the JetStream-backed event transport with its consumers, and the
// creator overlay hub, all under suture supervision.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/packstream/packstream/internal/accounts"
	"github.com/packstream/packstream/internal/api"
	"github.com/packstream/packstream/internal/auth"
	"github.com/packstream/packstream/internal/config"
	"github.com/packstream/packstream/internal/eventbus"
	"github.com/packstream/packstream/internal/logging"
	"github.com/packstream/packstream/internal/orders"
	"github.com/packstream/packstream/internal/overlay"
	"github.com/packstream/packstream/internal/supervisor"
	"github.com/packstream/packstream/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("environment", cfg.Server.Environment).Msg("packstream starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Transport: embedded JetStream for single-instance deployments, or an
	// external cluster via the configured URL.
	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		serverCfg := eventbus.DefaultServerConfig(cfg.NATS.StoreDir)
		embedded, err := eventbus.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := embedded.Shutdown(shutdownCtx); err != nil {
				logging.Warn().Err(err).Msg("embedded NATS shutdown incomplete")
			}
		}()
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("embedded NATS server ready")
	}

	nc, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := eventbus.DefaultStreamConfig()
	streamCfg.Name = cfg.NATS.StreamName
	streamInit, err := eventbus.NewStreamInitializer(js, &streamCfg)
	if err != nil {
		return fmt.Errorf("create stream initializer: %w", err)
	}
	if _, err := streamInit.EnsureStream(ctx); err != nil {
		return fmt.Errorf("ensure event stream: %w", err)
	}

	wmLogger := logging.NewWatermillAdapter()

	publisher, err := eventbus.NewPublisher(eventbus.DefaultPublisherConfig(natsURL), wmLogger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	defer func() { _ = publisher.Close() }()
	publisher.SetCircuitBreaker(eventbus.NewCircuitBreaker(
		eventbus.DefaultCircuitBreakerConfig("eventbus-publish")))

	// Consumers: one durable queue-group subscriber per queue so each
	// message reaches exactly one instance of each consumer.
	newSubscriber := func(suffix string) (*eventbus.Subscriber, error) {
		subCfg := eventbus.DefaultSubscriberConfig(
			natsURL,
			cfg.NATS.DurableName+"-"+suffix,
			cfg.NATS.QueueGroup,
		)
		subCfg.StreamName = cfg.NATS.StreamName
		subCfg.MaxDeliver = cfg.NATS.MaxDeliver
		subCfg.AckWaitTimeout = cfg.NATS.AckWait
		return eventbus.NewSubscriber(&subCfg, wmLogger)
	}

	orderSub, err := newSubscriber("orders")
	if err != nil {
		return fmt.Errorf("create order subscriber: %w", err)
	}
	defer func() { _ = orderSub.Close() }()

	accountSub, err := newSubscriber("accounts")
	if err != nil {
		return fmt.Errorf("create account subscriber: %w", err)
	}
	defer func() { _ = accountSub.Close() }()

	notifySub, err := newSubscriber("notify")
	if err != nil {
		return fmt.Errorf("create notify subscriber: %w", err)
	}
	defer func() { _ = notifySub.Close() }()

	// Domain components.
	orderStore := orders.NewMemoryStore()
	accountStore := accounts.NewMemoryStore()
	reconciler := orders.NewReconciler(orderStore, publisher, cfg.Queues.NotifyTopic)
	syncer := accounts.NewSyncer(accountStore)

	hub := overlay.NewHub(cfg.Overlay.SweepInterval)
	keys := overlay.NewBcryptKeyStore()
	for _, k := range cfg.Overlay.Keys {
		if err := keys.Add(k.KeyID, k.CreatorID, k.Secret); err != nil {
			return fmt.Errorf("load overlay key %s: %w", k.KeyID, err)
		}
	}
	gate := overlay.NewGate(keys, hub)

	routerCfg := eventbus.DefaultRouterConfig()
	routerCfg.RetryMaxRetries = cfg.NATS.RouterRetryCount
	routerCfg.RetryInitialInterval = cfg.NATS.RouterRetryInitialInterval
	routerCfg.PoisonQueueTopic = cfg.NATS.RouterPoisonQueueTopic
	routerCfg.CloseTimeout = cfg.NATS.RouterCloseTimeout

	router, err := eventbus.NewRouter(&routerCfg, publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}
	router.AddConsumerHandler("order-reconciler", cfg.Queues.OrderTopic,
		orderSub.WatermillSubscriber(), reconciler.Handler())
	router.AddConsumerHandler("account-syncer", cfg.Queues.AccountTopic,
		accountSub.WatermillSubscriber(), syncer.Handler())
	router.AddConsumerHandler("overlay-notifier", cfg.Queues.NotifyTopic,
		notifySub.WatermillSubscriber(), overlay.NotifyHandler(hub))

	// HTTP surface.
	ingress, err := webhook.NewIngress(webhook.Config{
		Secret:       cfg.Webhook.Secret,
		OrderTopic:   cfg.Queues.OrderTopic,
		AccountTopic: cfg.Queues.AccountTopic,
		Tolerance:    cfg.Webhook.Tolerance,
	}, publisher)
	if err != nil {
		return fmt.Errorf("create webhook ingress: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.SessionTimeout)
	if err != nil {
		return fmt.Errorf("create JWT manager: %w", err)
	}

	httpRouter := api.NewRouter(cfg, api.Deps{
		Webhook: api.NewWebhookHandler(ingress),
		Overlay: api.NewOverlayHandler(gate),
		Health: api.NewHealthHandler(map[string]api.ReadyChecker{
			"nats":   readyFunc(func() bool { return nc.Status() == natsgo.CONNECTED }),
			"stream": readyFunc(func() bool { return streamInit.IsHealthy(context.Background()) }),
		}),
		Auth: auth.NewMiddleware(jwtMgr),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Supervision: a consumer crash restarts the messaging layer without
	// taking down the webhook endpoint, and vice versa.
	tree := supervisor.NewTree(
		slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		supervisor.DefaultTreeConfig(),
	)
	tree.AddMessagingService(supervisor.NewRunnerService("eventbus-router", router))
	tree.AddMessagingService(supervisor.NewRunnerService("overlay-hub", hub))
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, 10*time.Second))

	logging.Info().
		Str("addr", httpServer.Addr).
		Str("order_topic", cfg.Queues.OrderTopic).
		Str("account_topic", cfg.Queues.AccountTopic).
		Str("notify_topic", cfg.Queues.NotifyTopic).
		Msg("packstream serving")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervision tree failed: %w", err)
	}

	logging.Info().Msg("packstream stopped")
	return nil
}

// readyFunc adapts a closure to the health checker interface.
type readyFunc func() bool

func (f readyFunc) IsHealthy() bool { return f() }
