package models

import "time"

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Webhook  WebhookConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Retry    RetryConfig
	Notifier NotifierConfig
}

// DatabaseConfig holds SQLite connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ProcessingMode selects how verified webhook deliveries are processed.
type ProcessingMode string

const (
	// ProcessingInline applies the event inside the HTTP request.
	ProcessingInline ProcessingMode = "inline"
	// ProcessingQueue publishes the event to Kafka and applies it from the consumer.
	ProcessingQueue ProcessingMode = "queue"
)

// WebhookConfig holds inbound webhook settings
type WebhookConfig struct {
	Secret           string
	SignatureHeader  string
	MaxBodyBytes     int64
	RateLimit        int
	RateWindow       time.Duration
	Mode             ProcessingMode
	EventAliasesFile string
}

// KafkaConfig holds broker and topic settings
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
	GroupId     string
	NotifyTopic string
}

// RedisConfig holds the dead-letter list settings. An empty Addr disables it.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	DeadLetterKey string
}

// RetryConfig holds the retry supervisor policy
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// NotifierConfig holds balance-change notification settings
type NotifierConfig struct {
	Enabled     bool
	Timeout     time.Duration
	WebhookURL  string
	MaxInFlight int
}
