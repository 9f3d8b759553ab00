package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var direction, status string
	var amountStr, balanceBeforeStr, balanceAfterStr, feeStr string
	err := row.Scan(&t.Reference, &t.AccountNumber, &t.CustomerId, &direction, &t.EventFamily,
		&amountStr, &balanceBeforeStr, &balanceAfterStr, &feeStr,
		&t.CounterpartyName, &t.CounterpartyBank, &status, &t.FailureReason,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Direction = models.Direction(direction)
	t.Status = models.TransactionStatus(status)

	if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if t.BalanceBefore, err = decimal.NewFromString(balanceBeforeStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance before '%s': %w", balanceBeforeStr, err)
	}
	if t.BalanceAfter, err = decimal.NewFromString(balanceAfterStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance after '%s': %w", balanceAfterStr, err)
	}
	if t.Fee, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("failed to parse fee '%s': %w", feeStr, err)
	}
	return &t, nil
}

func getTransaction(ctx context.Context, q queryer, reference string) (*models.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, queryGetTransaction, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrTransactionNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTransaction(ctx context.Context, reference string) (*models.Transaction, error) {
	t, err := getTransaction(ctx, s.db, reference)
	if err != nil && !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, err
}

// CountTransactions returns how many rows carry reference (0 or 1)
func (s *Service) CountTransactions(ctx context.Context, reference string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountTransactions, reference).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// GetTransactionHistory returns paginated transaction history for an account, newest first
func (s *Service) GetTransactionHistory(ctx context.Context, accountNumber string, limit, offset int) ([]models.Transaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("account_number", accountNumber),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset cannot be negative, got %d", offset)
	}

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, accountNumber, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}
