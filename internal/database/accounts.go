package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var balanceStr, openingStr string
	err := row.Scan(&account.Id, &account.AccountNumber, &account.CustomerId, &account.CustomerName,
		&account.CustomerEmail, &account.BankName, &account.BankCode, &account.WalletId,
		&balanceStr, &openingStr, &account.Active, &account.Version, &account.LastReference,
		&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	account.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	account.Opening, err = decimal.NewFromString(openingStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse opening balance '%s': %w", openingStr, err)
	}
	return &account, nil
}

func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	if params.AccountNumber == "" {
		return nil, fmt.Errorf("account number cannot be empty")
	}
	if params.CustomerId == "" {
		return nil, fmt.Errorf("customer id cannot be empty")
	}
	if params.OpeningBalance.IsNegative() {
		return nil, fmt.Errorf("opening balance cannot be negative, got %s", params.OpeningBalance.String())
	}

	opening := params.OpeningBalance.Round(2)
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, queryInsertAccount,
		params.AccountNumber, params.CustomerId, params.CustomerName, params.CustomerEmail,
		params.BankName, params.BankCode, params.WalletId, opening.StringFixed(2), opening.StringFixed(2), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountExists, params.AccountNumber)
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	zap.L().Info("Account created",
		zap.String("account_number", params.AccountNumber),
		zap.String("customer_id", params.CustomerId),
		zap.String("opening_balance", opening.StringFixed(2)))

	return s.GetAccountByNumber(ctx, params.AccountNumber)
}

// GetAccountByNumber returns the account regardless of its active flag
func (s *Service) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByNumber, accountNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, accountNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// activeAccount resolves an account for event application; inactive accounts are not found.
func activeAccount(ctx context.Context, q queryer, accountNumber string) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, queryGetActiveAccountByNumber, accountNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, accountNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}
	return account, nil
}

func (s *Service) GetAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// DeactivateAccount flips the active flag. Accounts are never deleted.
func (s *Service) DeactivateAccount(ctx context.Context, accountNumber string) error {
	result, err := s.db.ExecContext(ctx, queryDeactivateAccount, time.Now().UTC(), accountNumber)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrAccountNotFound, accountNumber)
	}

	zap.L().Info("Account deactivated", zap.String("account_number", accountNumber))
	return nil
}
