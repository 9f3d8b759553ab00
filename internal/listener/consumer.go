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

package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ewallet-webhook-go/internal/events"
	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/reconcile"
	"ewallet-webhook-go/internal/retry"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Processor applies one parsed event
type Processor interface {
	Handle(ctx context.Context, env events.Envelope) (*reconcile.Outcome, error)
}

// DeliveryLog records the processing result of a logged webhook delivery
type DeliveryLog interface {
	MarkWebhookProcessed(ctx context.Context, id string, attempts int, processErr error) error
}

// EventConsumerConfig contains configuration for EventConsumer
type EventConsumerConfig struct {
	Kafka      models.KafkaConfig
	Processor  Processor
	Supervisor *retry.Supervisor
	Deliveries DeliveryLog
}

// EventConsumer reads queued webhook deliveries and applies them under the
// retry supervisor. Offsets are committed once an event is applied or
// dead-lettered.
type EventConsumer struct {
	reader     messageReader
	processor  Processor
	supervisor *retry.Supervisor
	deliveries DeliveryLog
	topic      string
	fetchDelay time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func NewEventConsumer(cfg EventConsumerConfig) *EventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupId,
		Topic:          cfg.Kafka.EventsTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
		MaxAttempts:    3,
		Logger:         kafka.LoggerFunc(func(msg string, args ...interface{}) { zap.L().Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:    kafka.LoggerFunc(func(msg string, args ...interface{}) { zap.L().Error(fmt.Sprintf(msg, args...)) }),
	})
	return newEventConsumer(reader, cfg)
}

func newEventConsumer(reader messageReader, cfg EventConsumerConfig) *EventConsumer {
	return &EventConsumer{
		reader:     reader,
		processor:  cfg.Processor,
		supervisor: cfg.Supervisor,
		deliveries: cfg.Deliveries,
		topic:      cfg.Kafka.EventsTopic,
		fetchDelay: time.Second,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start launches the consume loop. It has no effect after the first call or
// after Stop.
func (c *EventConsumer) Start(ctx context.Context) {
	started := false
	c.startOnce.Do(func() { started = true })
	if !started {
		zap.L().Warn("Event consumer already started or stopped", zap.String("topic", c.topic))
		return
	}
	zap.L().Info("Starting event consumer", zap.String("topic", c.topic))

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer cancel()
		c.consumeLoop(ctx)
	}()
}

// Stop signals the consume loop and waits for the in-flight event to finish
func (c *EventConsumer) Stop() {
	zap.L().Info("Stopping event consumer")
	c.stopOnce.Do(func() { close(c.stopChan) })
	// A consumer that never started has no loop to close doneChan
	c.startOnce.Do(func() { close(c.doneChan) })
	<-c.doneChan
	if err := c.reader.Close(); err != nil {
		zap.L().Warn("Failed to close event reader", zap.Error(err))
	}
	zap.L().Info("Event consumer stopped")
}

// Done is closed when the consume loop has exited
func (c *EventConsumer) Done() <-chan struct{} {
	return c.doneChan
}

func (c *EventConsumer) consumeLoop(ctx context.Context) {
	defer close(c.doneChan)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Error("Failed to fetch event", zap.String("topic", c.topic), zap.Error(err))
			if !c.pause(ctx) {
				return
			}
			continue
		}

		if err := c.handleMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			// Left uncommitted; redelivered after a restart or rebalance
			zap.L().Error("Event not committed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.String("key", string(msg.Key)),
				zap.Error(err))
			if !c.pause(ctx) {
				return
			}
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			zap.L().Error("Failed to commit event offset",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

func (c *EventConsumer) pause(ctx context.Context) bool {
	timer := time.NewTimer(c.fetchDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// handleMessage returns nil when the message may be committed
func (c *EventConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	job := retry.Job{
		Reference: string(msg.Key),
		EventType: header(msg, headerEventType),
		Payload:   msg.Value,
	}

	attempts := 0
	var runErr error
	env, err := events.Parse(msg.Value)
	if err != nil {
		attempts = 1
		runErr = c.supervisor.DeadLetter(ctx, job, attempts, err, true)
	} else {
		job.EventType = env.Event
		if ref := env.Reference(); ref != "" {
			job.Reference = ref
		}
		runErr = c.supervisor.Run(ctx, job, func(ctx context.Context) error {
			attempts++
			_, err := c.processor.Handle(ctx, env)
			return err
		})
	}

	if runErr != nil && !errors.Is(runErr, retry.ErrDeadLettered) {
		return runErr
	}
	c.markProcessed(ctx, header(msg, headerWebhookLogId), attempts, runErr)
	return nil
}

func (c *EventConsumer) markProcessed(ctx context.Context, logId string, attempts int, processErr error) {
	if logId == "" || c.deliveries == nil {
		return
	}
	if err := c.deliveries.MarkWebhookProcessed(ctx, logId, attempts, processErr); err != nil {
		zap.L().Warn("Failed to update webhook log",
			zap.String("webhook_log_id", logId),
			zap.Error(err))
	}
}
