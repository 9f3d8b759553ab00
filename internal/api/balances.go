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

package api

import (
	"context"
	"errors"
	"fmt"

	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetBalance returns the available and ledger balance of an account
func (s *LedgerService) GetBalance(ctx context.Context, accountNumber string) (models.Balance, error) {
	if accountNumber == "" {
		return models.Balance{}, fmt.Errorf("account_number is required")
	}

	balance, err := s.db.GetBalance(ctx, accountNumber)
	if errors.Is(err, store.ErrAccountNotFound) {
		return models.Balance{}, err
	}
	if err != nil {
		zap.L().Error("Failed to get balance",
			zap.String("account_number", accountNumber),
			zap.Error(err))
		return models.Balance{}, fmt.Errorf("failed to retrieve balance")
	}
	return balance, nil
}

// GetTransactionHistory returns paginated transaction history, newest first
func (s *LedgerService) GetTransactionHistory(ctx context.Context, accountNumber string, limit, offset int) ([]models.TransactionRecord, error) {
	if accountNumber == "" {
		return nil, fmt.Errorf("account_number is required")
	}

	limit, offset = normalizePage(limit, offset)

	if _, err := s.db.GetAccountByNumber(ctx, accountNumber); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to retrieve account")
	}

	transactions, err := s.db.GetTransactionHistory(ctx, accountNumber, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("account_number", accountNumber),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history")
	}

	result := make([]models.TransactionRecord, len(transactions))
	for i, tx := range transactions {
		result[i] = models.TransactionRecord{
			Reference:        tx.Reference,
			Direction:        string(tx.Direction),
			Amount:           tx.Amount,
			Fee:              tx.Fee,
			BalanceAfter:     tx.BalanceAfter,
			CounterpartyName: tx.CounterpartyName,
			Status:           string(tx.Status),
			FailureReason:    tx.FailureReason,
			CreatedAt:        tx.CreatedAt,
		}
	}

	return result, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
