package listener

import (
	"context"
	"fmt"
	"time"

	"ewallet-webhook-go/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	headerEventType    = "event-type"
	headerWebhookLogId = "webhook-log-id"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher hands verified deliveries to the events topic in queue mode
type Publisher struct {
	writer messageWriter
	topic  string
}

func NewPublisher(cfg models.KafkaConfig) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		Logger:       kafka.LoggerFunc(func(msg string, args ...interface{}) { zap.L().Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { zap.L().Error(fmt.Sprintf(msg, args...)) }),
	}
	return &Publisher{writer: writer, topic: cfg.EventsTopic}
}

// Publish writes the raw body keyed by reference, so redeliveries of one
// reference land on the same partition in order
func (p *Publisher) Publish(ctx context.Context, logId, eventType, reference string, body []byte) error {
	msg := kafka.Message{
		Key:   []byte(reference),
		Value: body,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
			{Key: headerWebhookLogId, Value: []byte(logId)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		zap.L().Error("Failed to publish webhook event",
			zap.String("topic", p.topic),
			zap.String("event", eventType),
			zap.String("reference", reference),
			zap.Error(err))
		return fmt.Errorf("failed to publish event to %s: %w", p.topic, err)
	}
	zap.L().Debug("Webhook event published",
		zap.String("topic", p.topic),
		zap.String("event", eventType),
		zap.String("reference", reference))
	return nil
}

func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close event publisher: %w", err)
	}
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
