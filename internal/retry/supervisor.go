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

package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"ewallet-webhook-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDeadLettered marks a job that was handed to the dead-letter sink
var ErrDeadLettered = errors.New("event dead-lettered")

// Job is one unit of supervised work, carried into the dead letter on failure
type Job struct {
	Reference string
	EventType string
	Payload   []byte
}

// Sink persists dead letters
type Sink interface {
	SaveDeadLetter(ctx context.Context, letter models.DeadLetter) error
}

// MultiSink writes every letter to each sink in order and reports the first failure
type MultiSink []Sink

func (m MultiSink) SaveDeadLetter(ctx context.Context, letter models.DeadLetter) error {
	var errs []error
	for _, sink := range m {
		if err := sink.SaveDeadLetter(ctx, letter); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Supervisor retries transient failures with backoff and dead-letters the rest
type Supervisor struct {
	policy     Policy
	isTerminal func(error) bool
	sink       Sink
	random     func() float64
	now        func() time.Time
}

func NewSupervisor(policy Policy, isTerminal func(error) bool, sink Sink) *Supervisor {
	if isTerminal == nil {
		isTerminal = func(error) bool { return false }
	}
	return &Supervisor{
		policy:     policy,
		isTerminal: isTerminal,
		sink:       sink,
		random:     rand.Float64,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run calls fn until it succeeds, fails terminally or exhausts the policy.
// A dead-lettered job returns an error wrapping ErrDeadLettered and the
// last failure. Cancelling ctx stops retrying and returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context, job Job, fn func(ctx context.Context) error) error {
	maxAttempts := s.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				zap.L().Info("Event processed after retry",
					zap.String("reference", job.Reference),
					zap.String("event", job.EventType),
					zap.Int("attempts", attempt))
			}
			return nil
		}

		if ctx.Err() != nil && errors.Is(lastErr, ctx.Err()) {
			return ctx.Err()
		}

		if s.isTerminal(lastErr) {
			zap.L().Warn("Terminal processing failure",
				zap.String("reference", job.Reference),
				zap.String("event", job.EventType),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			return s.DeadLetter(ctx, job, attempt, lastErr, true)
		}

		if attempt == maxAttempts {
			break
		}

		delay := s.policy.delay(attempt, s.random)
		zap.L().Warn("Transient processing failure, retrying",
			zap.String("reference", job.Reference),
			zap.String("event", job.EventType),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	zap.L().Error("Retries exhausted",
		zap.String("reference", job.Reference),
		zap.String("event", job.EventType),
		zap.Int("attempts", maxAttempts),
		zap.Error(lastErr))
	return s.DeadLetter(ctx, job, maxAttempts, lastErr, false)
}

// DeadLetter hands a failed job to the sink. The returned error wraps
// ErrDeadLettered and cause when the sink accepted it, and the sink error otherwise.
func (s *Supervisor) DeadLetter(ctx context.Context, job Job, attempts int, cause error, terminal bool) error {
	if s.sink == nil {
		return fmt.Errorf("no dead-letter sink configured: %w", cause)
	}

	letter := models.DeadLetter{
		Id:        uuid.NewString(),
		Reference: job.Reference,
		EventType: job.EventType,
		Payload:   job.Payload,
		Error:     cause.Error(),
		Terminal:  terminal,
		Attempts:  attempts,
		CreatedAt: s.now(),
	}

	// The sink write must land even when the caller is shutting down
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.sink.SaveDeadLetter(saveCtx, letter); err != nil {
		zap.L().Error("Failed to save dead letter",
			zap.String("reference", job.Reference),
			zap.String("event", job.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to save dead letter: %w (cause: %v)", err, cause)
	}

	zap.L().Info("Event dead-lettered",
		zap.String("dead_letter_id", letter.Id),
		zap.String("reference", job.Reference),
		zap.String("event", job.EventType),
		zap.Bool("terminal", terminal),
		zap.Int("attempts", attempts))
	return fmt.Errorf("%w: %w", ErrDeadLettered, cause)
}
