package database

import (
	"context"
	"fmt"

	"ewallet-webhook-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetBalance returns the available balance and the ledger balance, which also
// counts entries still pending settlement.
func (s *Service) GetBalance(ctx context.Context, accountNumber string) (models.Balance, error) {
	zap.L().Debug("Getting balance", zap.String("account_number", accountNumber))

	account, err := s.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return models.Balance{}, err
	}

	pending, err := s.signedSum(ctx, accountNumber, models.StatusPending)
	if err != nil {
		return models.Balance{}, err
	}

	return models.Balance{
		AccountNumber: account.AccountNumber,
		Available:     account.Balance,
		Ledger:        account.Balance.Add(pending).Round(2),
	}, nil
}

// signedSum adds credits and subtracts debits over entries with the given status
func (s *Service) signedSum(ctx context.Context, accountNumber string, status models.TransactionStatus) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, queryGetSignedAmountsByStatus, accountNumber, string(status))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query %s amounts: %w", status, err)
	}
	defer closeRows(rows)

	total := decimal.Zero
	for rows.Next() {
		var direction, amountStr string
		if err := rows.Scan(&direction, &amountStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		if models.Direction(direction) == models.DirectionDebit {
			amount = amount.Neg()
		}
		total = total.Add(amount)
	}

	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating amount rows: %w", err)
	}
	return total, nil
}

// ReconcileAccountBalance verifies that the stored balance equals the opening
// balance plus the signed sum of completed entries.
func (s *Service) ReconcileAccountBalance(ctx context.Context, accountNumber string) error {
	zap.L().Info("Reconciling balance", zap.String("account_number", accountNumber))

	account, err := s.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	completed, err := s.signedSum(ctx, accountNumber, models.StatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to calculate balance from transactions: %w", err)
	}
	calculated := account.Opening.Add(completed).Round(2)

	if !account.Balance.Equal(calculated) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_number", accountNumber),
			zap.String("current_balance", account.Balance.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("difference", account.Balance.Sub(calculated).String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s", account.Balance.String(), calculated.String())
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("account_number", accountNumber),
		zap.String("balance", account.Balance.String()))
	return nil
}
