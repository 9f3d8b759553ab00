/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"ewallet-webhook-go/internal/api"
	"ewallet-webhook-go/internal/common"
	"ewallet-webhook-go/internal/config"
	"ewallet-webhook-go/internal/listener"
	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/signature"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	if cfg.Webhook.Secret == "" {
		zap.L().Warn("WEBHOOK_SECRET is not set, every delivery will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting e-wallet webhook service",
		zap.String("addr", cfg.Server.Addr),
		zap.String("processing_mode", string(cfg.Webhook.Mode)))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	webhookConfig := api.WebhookHandlerConfig{
		Verifier:     signature.NewVerifier(cfg.Webhook.Secret),
		Header:       cfg.Webhook.SignatureHeader,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		Deliveries:   services.DbService,
		Dispatcher:   services.Dispatcher,
		DeadLetters:  services.Supervisor,
	}
	if services.Publisher != nil {
		webhookConfig.Publisher = services.Publisher
	}

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.RouterConfig{
			Ledger:     api.NewLedgerService(services.DbService),
			Webhooks:   api.NewWebhookHandler(webhookConfig),
			RateLimit:  cfg.Webhook.RateLimit,
			RateWindow: cfg.Webhook.RateWindow,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Webhook.Mode == models.ProcessingQueue {
		consumer := listener.NewEventConsumer(listener.EventConsumerConfig{
			Kafka:      cfg.Kafka,
			Processor:  services.Dispatcher,
			Supervisor: services.Supervisor,
			Deliveries: services.DbService,
		})
		consumer.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			consumer.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("Shutdown signal received, draining HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("Service stopped with error", zap.Error(err))
		return
	}
	zap.L().Info("Service stopped gracefully")
}
