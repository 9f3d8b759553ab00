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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	journalCustomerWallet     = "customer_wallet"
	journalProviderSettlement = "provider_settlement"
	settlementAccountId       = "embedly"
)

func validateLedgerEvent(reference, accountNumber string, direction models.Direction, amount decimal.Decimal) error {
	if reference == "" {
		return fmt.Errorf("%w: reference cannot be empty", store.ErrInvalidLedgerEvent)
	}
	if accountNumber == "" {
		return fmt.Errorf("%w: account number cannot be empty", store.ErrInvalidLedgerEvent)
	}
	if direction != models.DirectionCredit && direction != models.DirectionDebit {
		return fmt.Errorf("%w: unknown direction %q", store.ErrInvalidLedgerEvent, direction)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", store.ErrInvalidLedgerEvent, amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount %s has more than 2 decimal places", store.ErrInvalidLedgerEvent, amount.String())
	}
	return nil
}

// ApplyLedgerEvent applies a balance-affecting event exactly once per reference.
// It returns the stored record and whether this call applied it. A completed or
// failed reference is returned unchanged with applied=false; a pending one is
// settled in place.
func (s *Service) ApplyLedgerEvent(ctx context.Context, params store.ApplyLedgerEventParams) (*models.Transaction, bool, error) {
	if err := validateLedgerEvent(params.Reference, params.AccountNumber, params.Direction, params.Amount); err != nil {
		return nil, false, err
	}

	zap.L().Info("Applying ledger event",
		zap.String("reference", params.Reference),
		zap.String("account_number", params.AccountNumber),
		zap.String("event_family", params.EventFamily),
		zap.String("direction", string(params.Direction)),
		zap.String("amount", params.Amount.String()))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	existing, err := getTransaction(ctx, tx, params.Reference)
	if err == nil && existing.Status != models.StatusPending {
		zap.L().Info("Reference already applied, skipping",
			zap.String("reference", params.Reference),
			zap.String("status", string(existing.Status)))
		if existing.AccountNumber != params.AccountNumber {
			zap.L().Warn("Replayed reference targets a different account",
				zap.String("reference", params.Reference),
				zap.String("stored_account", existing.AccountNumber),
				zap.String("event_account", params.AccountNumber))
		}
		return existing, false, nil
	} else if err != nil && !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, false, fmt.Errorf("failed to check for existing transaction: %w", err)
	}
	pending := err == nil

	account, err := activeAccount(ctx, tx, params.AccountNumber)
	if err != nil {
		return nil, false, err
	}
	if pending && existing.AccountNumber != account.AccountNumber {
		return nil, false, fmt.Errorf("%w: pending reference %s belongs to account %s",
			store.ErrInvalidLedgerEvent, params.Reference, existing.AccountNumber)
	}

	balanceBefore := account.Balance
	var balanceAfter decimal.Decimal
	switch params.Direction {
	case models.DirectionCredit:
		balanceAfter = balanceBefore.Add(params.Amount).Round(2)
	case models.DirectionDebit:
		balanceAfter = balanceBefore.Sub(params.Amount).Round(2)
	}
	if balanceAfter.IsNegative() {
		zap.L().Warn("Debit exceeds available balance",
			zap.String("reference", params.Reference),
			zap.String("account_number", params.AccountNumber),
			zap.String("balance", balanceBefore.String()),
			zap.String("amount", params.Amount.String()))
		return nil, false, fmt.Errorf("%w: account %s balance %s cannot cover %s",
			store.ErrInsufficientFunds, params.AccountNumber, balanceBefore.StringFixed(2), params.Amount.StringFixed(2))
	}

	now := time.Now().UTC()
	transaction := &models.Transaction{
		Reference:        params.Reference,
		AccountNumber:    account.AccountNumber,
		CustomerId:       account.CustomerId,
		Direction:        params.Direction,
		EventFamily:      params.EventFamily,
		Amount:           params.Amount,
		BalanceBefore:    balanceBefore,
		BalanceAfter:     balanceAfter,
		Fee:              params.Fee,
		CounterpartyName: params.CounterpartyName,
		CounterpartyBank: params.CounterpartyBank,
		Status:           models.StatusCompleted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if pending {
		// Settlement of an entry created ahead of time keeps its creation timestamp
		transaction.CreatedAt = existing.CreatedAt
		if err := settlePendingTransaction(ctx, tx, transaction); err != nil {
			return nil, false, fmt.Errorf("failed to settle pending transaction: %w", err)
		}
	} else if err := insertTransaction(ctx, tx, transaction); err != nil {
		if isUniqueViolation(err) {
			rollback(tx)
			return s.alreadyApplied(ctx, params.Reference)
		}
		return nil, false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := addJournalEntries(ctx, tx, transaction); err != nil {
		return nil, false, fmt.Errorf("failed to add journal entries: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance,
		balanceAfter.StringFixed(2), params.Reference, now, account.AccountNumber, account.Version)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, false, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return s.alreadyApplied(ctx, params.Reference)
		}
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Ledger event applied",
		zap.String("reference", params.Reference),
		zap.String("account_number", account.AccountNumber),
		zap.String("old_balance", balanceBefore.StringFixed(2)),
		zap.String("new_balance", balanceAfter.StringFixed(2)))

	return transaction, true, nil
}

// alreadyApplied resolves a lost insert race by returning the winner's row
func (s *Service) alreadyApplied(ctx context.Context, reference string) (*models.Transaction, bool, error) {
	zap.L().Info("Concurrent delivery already applied reference", zap.String("reference", reference))
	existing, err := getTransaction(ctx, s.db, reference)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read winning transaction: %w", err)
	}
	return existing, false, nil
}

// RecordFailedEvent records a checkout that settled as failed. It never moves
// the balance and never touches a completed entry.
func (s *Service) RecordFailedEvent(ctx context.Context, params store.RecordFailedEventParams) (*models.Transaction, bool, error) {
	if params.Reference == "" {
		return nil, false, fmt.Errorf("%w: reference cannot be empty", store.ErrInvalidLedgerEvent)
	}
	if params.AccountNumber == "" {
		return nil, false, fmt.Errorf("%w: account number cannot be empty", store.ErrInvalidLedgerEvent)
	}
	direction := params.Direction
	if direction == "" {
		direction = models.DirectionCredit
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	now := time.Now().UTC()
	existing, err := getTransaction(ctx, tx, params.Reference)
	switch {
	case err == nil:
		switch existing.Status {
		case models.StatusFailed:
			return existing, false, nil
		case models.StatusCompleted:
			zap.L().Warn("Failure notice for a completed transaction, leaving it untouched",
				zap.String("reference", params.Reference),
				zap.String("reason", params.Reason))
			return existing, false, nil
		}

		if _, err := tx.ExecContext(ctx, queryMarkTransactionFailed, params.Reason, now, params.Reference); err != nil {
			return nil, false, fmt.Errorf("failed to mark transaction failed: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		existing.Status = models.StatusFailed
		existing.FailureReason = params.Reason
		existing.UpdatedAt = now

		zap.L().Info("Pending transaction marked failed",
			zap.String("reference", params.Reference),
			zap.String("reason", params.Reason))
		return existing, true, nil

	case !errors.Is(err, store.ErrTransactionNotFound):
		return nil, false, fmt.Errorf("failed to check for existing transaction: %w", err)
	}

	account, err := activeAccount(ctx, tx, params.AccountNumber)
	if err != nil {
		return nil, false, err
	}

	transaction := &models.Transaction{
		Reference:     params.Reference,
		AccountNumber: account.AccountNumber,
		CustomerId:    account.CustomerId,
		Direction:     direction,
		EventFamily:   params.EventFamily,
		Amount:        params.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance,
		Fee:           decimal.Zero,
		Status:        models.StatusFailed,
		FailureReason: params.Reason,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := insertTransaction(ctx, tx, transaction); err != nil {
		if isUniqueViolation(err) {
			rollback(tx)
			return s.alreadyApplied(ctx, params.Reference)
		}
		return nil, false, fmt.Errorf("failed to insert failed transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Failed transaction recorded",
		zap.String("reference", params.Reference),
		zap.String("account_number", account.AccountNumber),
		zap.String("reason", params.Reason))
	return transaction, true, nil
}

// CreatePendingTransaction records an entry ahead of settlement. The available
// balance is not moved.
func (s *Service) CreatePendingTransaction(ctx context.Context, params store.PendingTransactionParams) (*models.Transaction, error) {
	if err := validateLedgerEvent(params.Reference, params.AccountNumber, params.Direction, params.Amount); err != nil {
		return nil, err
	}

	account, err := activeAccount(ctx, s.db, params.AccountNumber)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	transaction := &models.Transaction{
		Reference:        params.Reference,
		AccountNumber:    account.AccountNumber,
		CustomerId:       account.CustomerId,
		Direction:        params.Direction,
		EventFamily:      params.EventFamily,
		Amount:           params.Amount,
		BalanceBefore:    account.Balance,
		BalanceAfter:     account.Balance,
		Fee:              params.Fee,
		CounterpartyName: params.CounterpartyName,
		CounterpartyBank: params.CounterpartyBank,
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := insertTransaction(ctx, s.db, transaction); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateTransaction, params.Reference)
		}
		return nil, fmt.Errorf("failed to insert pending transaction: %w", err)
	}

	zap.L().Info("Pending transaction created",
		zap.String("reference", params.Reference),
		zap.String("account_number", account.AccountNumber),
		zap.String("amount", params.Amount.String()))
	return transaction, nil
}

func insertTransaction(ctx context.Context, q queryer, t *models.Transaction) error {
	_, err := q.ExecContext(ctx, queryInsertTransaction,
		t.Reference, t.AccountNumber, t.CustomerId, string(t.Direction), t.EventFamily,
		t.Amount.StringFixed(2), t.BalanceBefore.StringFixed(2), t.BalanceAfter.StringFixed(2), t.Fee.StringFixed(2),
		t.CounterpartyName, t.CounterpartyBank, string(t.Status), t.FailureReason, t.CreatedAt, t.UpdatedAt)
	return err
}

func settlePendingTransaction(ctx context.Context, q queryer, t *models.Transaction) error {
	result, err := q.ExecContext(ctx, querySettlePendingTransaction,
		string(t.Direction), t.EventFamily, t.Amount.StringFixed(2), t.BalanceBefore.StringFixed(2),
		t.BalanceAfter.StringFixed(2), t.Fee.StringFixed(2), t.CounterpartyName, t.CounterpartyBank,
		t.UpdatedAt, t.Reference)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrConcurrentModification
	}
	return nil
}

type journalEntry struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// addJournalEntries creates double-entry bookkeeping entries.
// A credit raises the settlement asset held at the provider and the wallet
// liability owed to the customer; a debit lowers both.
func addJournalEntries(ctx context.Context, tx *sql.Tx, transaction *models.Transaction) error {
	wallet := journalEntry{accountType: journalCustomerWallet, accountId: transaction.AccountNumber}
	settlement := journalEntry{accountType: journalProviderSettlement, accountId: settlementAccountId}

	switch transaction.Direction {
	case models.DirectionCredit:
		settlement.debitAmount = transaction.Amount
		wallet.creditAmount = transaction.Amount
	case models.DirectionDebit:
		wallet.debitAmount = transaction.Amount
		settlement.creditAmount = transaction.Amount
	}

	for _, entry := range []journalEntry{settlement, wallet} {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), transaction.Reference, entry.accountType, entry.accountId,
			entry.debitAmount.StringFixed(2), entry.creditAmount.StringFixed(2), transaction.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
