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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/signature"
)

func Load() (*models.Config, error) {
	var (
		connMaxLifetime, connMaxIdleTime, pingTimeout, busyTimeout time.Duration
		readTimeout, writeTimeout, shutdownTimeout, rateWindow     time.Duration
		notifyTimeout, retryBaseDelay, retryMaxDelay               time.Duration
	)
	for _, d := range []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", 5 * time.Minute, &connMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", 30 * time.Second, &connMaxIdleTime},
		{"DB_PING_TIMEOUT", 5 * time.Second, &pingTimeout},
		{"DB_BUSY_TIMEOUT", 5 * time.Second, &busyTimeout},
		{"HTTP_READ_TIMEOUT", 10 * time.Second, &readTimeout},
		{"HTTP_WRITE_TIMEOUT", 15 * time.Second, &writeTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", 15 * time.Second, &shutdownTimeout},
		{"WEBHOOK_RATE_WINDOW", time.Minute, &rateWindow},
		{"NOTIFY_TIMEOUT", 10 * time.Second, &notifyTimeout},
		{"RETRY_BASE_DELAY", 500 * time.Millisecond, &retryBaseDelay},
		{"RETRY_MAX_DELAY", 30 * time.Second, &retryMaxDelay},
	} {
		value, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = value
	}

	jitter, err := getEnvFloat("RETRY_JITTER", 0.2)
	if err != nil {
		return nil, err
	}

	mode := models.ProcessingMode(strings.ToLower(getEnvString("PROCESSING_MODE", string(models.ProcessingInline))))
	if mode != models.ProcessingInline && mode != models.ProcessingQueue {
		return nil, fmt.Errorf("invalid PROCESSING_MODE %q: must be inline or queue", mode)
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "wallet.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		Webhook: models.WebhookConfig{
			Secret:           os.Getenv("WEBHOOK_SECRET"),
			SignatureHeader:  getEnvString("WEBHOOK_SIGNATURE_HEADER", signature.DefaultHeader),
			MaxBodyBytes:     int64(getEnvInt("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
			RateLimit:        getEnvInt("WEBHOOK_RATE_LIMIT", 100),
			RateWindow:       rateWindow,
			Mode:             mode,
			EventAliasesFile: os.Getenv("EVENT_ALIASES_FILE"),
		},
		Kafka: models.KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS"),
			EventsTopic: getEnvString("KAFKA_EVENTS_TOPIC", "embedly.webhooks"),
			GroupId:     getEnvString("KAFKA_GROUP_ID", "ewallet-reconciler"),
			NotifyTopic: os.Getenv("KAFKA_NOTIFY_TOPIC"),
		},
		Redis: models.RedisConfig{
			Addr:          os.Getenv("REDIS_ADDR"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            getEnvInt("REDIS_DB", 0),
			DeadLetterKey: getEnvString("DEADLETTER_REDIS_KEY", "ewallet:deadletters"),
		},
		Retry: models.RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseDelay:   retryBaseDelay,
			MaxDelay:    retryMaxDelay,
			Jitter:      jitter,
		},
		Notifier: models.NotifierConfig{
			Enabled:     getEnvBool("NOTIFY_ENABLED", true),
			Timeout:     notifyTimeout,
			WebhookURL:  os.Getenv("NOTIFY_WEBHOOK_URL"),
			MaxInFlight: getEnvInt("NOTIFY_MAX_IN_FLIGHT", 64),
		},
	}

	if cfg.Webhook.Mode == models.ProcessingQueue && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("PROCESSING_MODE=queue requires KAFKA_BROKERS")
	}
	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items
func getEnvList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return floatValue, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
