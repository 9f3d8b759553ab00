package config

import (
	"testing"
	"time"

	"ewallet-webhook-go/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_PATH", "HTTP_ADDR", "PROCESSING_MODE", "KAFKA_BROKERS", "WEBHOOK_RATE_LIMIT", "RETRY_JITTER", "NOTIFY_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "wallet.db" {
		t.Errorf("Expected wallet.db, got %s", cfg.Database.Path)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Webhook.Mode != models.ProcessingInline {
		t.Errorf("Expected inline mode, got %s", cfg.Webhook.Mode)
	}
	if cfg.Webhook.SignatureHeader != "x-embedly-signature" {
		t.Errorf("Unexpected signature header %s", cfg.Webhook.SignatureHeader)
	}
	if cfg.Webhook.RateLimit != 100 || cfg.Webhook.RateWindow != time.Minute {
		t.Errorf("Expected 100/min, got %d/%s", cfg.Webhook.RateLimit, cfg.Webhook.RateWindow)
	}
	if cfg.Notifier.Timeout != 10*time.Second || !cfg.Notifier.Enabled {
		t.Errorf("Unexpected notifier config %+v", cfg.Notifier)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Jitter != 0.2 {
		t.Errorf("Unexpected retry config %+v", cfg.Retry)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROCESSING_MODE", "Queue")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("DB_BUSY_TIMEOUT", "2s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NOTIFY_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Webhook.Mode != models.ProcessingQueue {
		t.Errorf("Expected queue mode, got %s", cfg.Webhook.Mode)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", cfg.Retry.BaseDelay)
	}
	if cfg.Database.BusyTimeout != 2*time.Second {
		t.Errorf("Expected 2s, got %s", cfg.Database.BusyTimeout)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("Expected redis db 3, got %d", cfg.Redis.DB)
	}
	if cfg.Notifier.Enabled {
		t.Error("Expected notifier disabled")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"NOTIFY_TIMEOUT": "soon"}},
		{"bad jitter", map[string]string{"RETRY_JITTER": "high"}},
		{"bad mode", map[string]string{"PROCESSING_MODE": "batch"}},
		{"queue without brokers", map[string]string{"PROCESSING_MODE": "queue", "KAFKA_BROKERS": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "notanumber")
	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("Expected fallback 7, got %d", got)
	}
	t.Setenv("TEST_BOOL", "yes")
	if got := getEnvBool("TEST_BOOL", true); !got {
		t.Error("Expected fallback true")
	}
	if got := getEnvList("TEST_UNSET_LIST"); got != nil {
		t.Errorf("Expected nil list, got %v", got)
	}
}
