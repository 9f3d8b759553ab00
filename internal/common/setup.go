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

package common

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"ewallet-webhook-go/internal/database"
	"ewallet-webhook-go/internal/events"
	"ewallet-webhook-go/internal/listener"
	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/notifier"
	"ewallet-webhook-go/internal/reconcile"
	"ewallet-webhook-go/internal/retry"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const notifierDrainTimeout = 5 * time.Second

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the wired reconciliation engine
type Services struct {
	DbService  *database.Service
	Registry   *events.Registry
	Notifier   *notifier.Notifier
	Dispatcher *reconcile.Dispatcher
	Supervisor *retry.Supervisor
	Publisher  *listener.Publisher
	Redis      *redis.Client

	closers []io.Closer
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService}

	services.Registry = events.NewRegistry()
	if cfg.Webhook.EventAliasesFile != "" {
		if err := services.Registry.LoadAliases(cfg.Webhook.EventAliasesFile); err != nil {
			services.Close()
			return nil, err
		}
	}

	var notify reconcile.Notifier
	if cfg.Notifier.Enabled {
		sender, err := newNotificationSender(cfg)
		if err != nil {
			services.Close()
			return nil, err
		}
		if closer, ok := sender.(io.Closer); ok {
			services.closers = append(services.closers, closer)
		}
		services.Notifier = notifier.New(sender, cfg.Notifier)
		notify = services.Notifier
	} else {
		zap.L().Info("Balance notifications disabled")
	}

	services.Dispatcher = reconcile.NewDispatcher(services.Registry, reconcile.DefaultHandlers(dbService, notify))

	sinks := retry.MultiSink{dbService}
	if client := retry.NewRedisClient(cfg.Redis); client != nil {
		if err := client.Ping(ctx).Err(); err != nil {
			zap.L().Warn("Redis unavailable, dead letters will only be stored in SQLite",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err))
			_ = client.Close()
		} else {
			services.Redis = client
			services.closers = append(services.closers, client)
			sinks = append(sinks, retry.NewRedisSink(client, cfg.Redis.DeadLetterKey))
			zap.L().Info("Redis dead-letter sink enabled",
				zap.String("addr", cfg.Redis.Addr),
				zap.String("key", cfg.Redis.DeadLetterKey))
		}
	}
	services.Supervisor = retry.NewSupervisor(retry.PolicyFromConfig(cfg.Retry), reconcile.IsTerminal, sinks)

	if cfg.Webhook.Mode == models.ProcessingQueue {
		services.Publisher = listener.NewPublisher(cfg.Kafka)
		services.closers = append(services.closers, services.Publisher)
	}

	zap.L().Info("Services initialized",
		zap.String("database", cfg.Database.Path),
		zap.String("processing_mode", string(cfg.Webhook.Mode)),
		zap.Strings("events", services.Registry.Names()))
	return services, nil
}

func newNotificationSender(cfg *models.Config) (notifier.Sender, error) {
	switch {
	case cfg.Kafka.NotifyTopic != "" && len(cfg.Kafka.Brokers) > 0:
		zap.L().Info("Publishing notifications to Kafka", zap.String("topic", cfg.Kafka.NotifyTopic))
		return notifier.NewKafkaSender(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic), nil
	case cfg.Notifier.WebhookURL != "":
		zap.L().Info("Posting notifications over HTTP", zap.String("url", cfg.Notifier.WebhookURL))
		sender, err := notifier.NewHTTPSender(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create notification sender: %w", err)
		}
		return sender, nil
	default:
		return notifier.LogSender{}, nil
	}
}

// InitializeDatabaseOnly initializes just the database service
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// Close waits briefly for in-flight notifications, then releases clients and the database
func (cs *Services) Close() {
	if cs.Notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), notifierDrainTimeout)
		if err := cs.Notifier.Wait(ctx); err != nil {
			zap.L().Warn("Notifications still in flight at shutdown", zap.Error(err))
		}
		cancel()
	}
	for i := len(cs.closers) - 1; i >= 0; i-- {
		if err := cs.closers[i].Close(); err != nil {
			zap.L().Warn("Failed to close client", zap.Error(err))
		}
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
