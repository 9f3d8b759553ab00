package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogWebhookDelivery stores one inbound delivery and returns its log id
func (s *Service) LogWebhookDelivery(ctx context.Context, params store.WebhookDeliveryParams) (string, error) {
	id := uuid.New().String()
	payload := params.Payload
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, queryInsertWebhookLog,
		id, params.EventType, params.Reference, payload, params.SignatureVerified, params.SourceIp, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert webhook log: %w", err)
	}

	zap.L().Debug("Webhook delivery logged",
		zap.String("id", id),
		zap.String("event_type", params.EventType),
		zap.String("reference", params.Reference),
		zap.Bool("signature_verified", params.SignatureVerified))
	return id, nil
}

// MarkWebhookProcessed records the processing result of a logged delivery.
// A nil processErr marks it processed.
func (s *Service) MarkWebhookProcessed(ctx context.Context, id string, attempts int, processErr error) error {
	lastError := ""
	if processErr != nil {
		lastError = processErr.Error()
	}
	processedAt := sql.NullTime{Time: time.Now().UTC(), Valid: processErr == nil}

	result, err := s.db.ExecContext(ctx, queryMarkWebhookProcessed, processErr == nil, attempts, lastError, processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update webhook log: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("webhook log %s not found", id)
	}
	return nil
}

func (s *Service) getWebhookLog(ctx context.Context, id string) (*models.WebhookLog, error) {
	var entry models.WebhookLog
	var processedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, queryGetWebhookLog, id).Scan(&entry.Id, &entry.EventType, &entry.Reference,
		&entry.Payload, &entry.SignatureVerified, &entry.SourceIp, &entry.Processed, &entry.Attempts,
		&entry.LastError, &entry.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		entry.ProcessedAt = processedAt.Time
	}
	return &entry, nil
}

// SaveDeadLetter persists an event whose processing could not be completed.
// Missing ids and timestamps are filled in.
func (s *Service) SaveDeadLetter(ctx context.Context, letter models.DeadLetter) error {
	if letter.Id == "" {
		letter.Id = uuid.New().String()
	}
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = time.Now().UTC()
	}
	if letter.Payload == nil {
		letter.Payload = []byte{}
	}

	_, err := s.db.ExecContext(ctx, queryInsertDeadLetter,
		letter.Id, letter.Reference, letter.EventType, letter.Payload, letter.Error,
		letter.Terminal, letter.Attempts, letter.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	zap.L().Warn("Event dead-lettered",
		zap.String("id", letter.Id),
		zap.String("reference", letter.Reference),
		zap.String("event_type", letter.EventType),
		zap.Bool("terminal", letter.Terminal),
		zap.Int("attempts", letter.Attempts),
		zap.String("error", letter.Error))
	return nil
}

func scanDeadLetter(row rowScanner) (*models.DeadLetter, error) {
	var letter models.DeadLetter
	var replayedAt sql.NullTime
	err := row.Scan(&letter.Id, &letter.Reference, &letter.EventType, &letter.Payload, &letter.Error,
		&letter.Terminal, &letter.Attempts, &letter.CreatedAt, &replayedAt)
	if err != nil {
		return nil, err
	}
	if replayedAt.Valid {
		letter.ReplayedAt = replayedAt.Time
	}
	return &letter, nil
}

func (s *Service) GetDeadLetter(ctx context.Context, id string) (*models.DeadLetter, error) {
	letter, err := scanDeadLetter(s.db.QueryRowContext(ctx, queryGetDeadLetter, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrDeadLetterNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return letter, nil
}

// ListDeadLetters returns dead letters oldest first. Replayed ones are skipped
// unless includeReplayed is set.
func (s *Service) ListDeadLetters(ctx context.Context, limit int, includeReplayed bool) ([]models.DeadLetter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, queryListDeadLetters, includeReplayed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer closeRows(rows)

	var letters []models.DeadLetter
	for rows.Next() {
		letter, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		letters = append(letters, *letter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letter rows: %w", err)
	}
	return letters, nil
}

func (s *Service) MarkDeadLetterReplayed(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, queryMarkDeadLetterReplayed, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark dead letter replayed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s (or already replayed)", store.ErrDeadLetterNotFound, id)
	}
	return nil
}
