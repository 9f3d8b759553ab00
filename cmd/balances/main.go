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

package main

import (
	"context"
	"flag"
	"fmt"

	"ewallet-webhook-go/internal/common"
	"ewallet-webhook-go/internal/config"
	"ewallet-webhook-go/internal/database"
	"ewallet-webhook-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts int
	inactive      int
	mismatched    int
}

func loadAccounts(ctx context.Context, dbService *database.Service, accountFilter string) ([]models.Account, error) {
	if accountFilter != "" {
		account, err := dbService.GetAccountByNumber(ctx, accountFilter)
		if err != nil {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return []models.Account{*account}, nil
	}
	accounts, err := dbService.GetAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

func printAccountHeader(account models.Account) {
	status := "active"
	if !account.Active {
		status = "inactive"
	}
	fmt.Printf("\n┌─ Account: %s (%s)\n", account.AccountNumber, status)
	fmt.Printf("│  Customer: %s <%s> (%s)\n", account.CustomerName, account.CustomerEmail, account.CustomerId)
	common.PrintBoxSeparator(78)
}

func printRecentTransactions(transactions []models.Transaction) {
	for i, tx := range transactions {
		fmt.Printf("%s %-15s %-6s %14s -> %14s  %-9s %s\n",
			common.BoxPrefix(i == len(transactions)-1),
			common.ShortId(tx.Reference),
			tx.Direction,
			common.FormatAmount(tx.Amount),
			common.FormatAmount(tx.BalanceAfter),
			tx.Status,
			tx.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func processAccount(ctx context.Context, account models.Account, dbService *database.Service, recent int) (bool, error) {
	balance, err := dbService.GetBalance(ctx, account.AccountNumber)
	if err != nil {
		return false, fmt.Errorf("failed to get balance: %w", err)
	}

	printAccountHeader(account)
	fmt.Printf("│  Available: %s  Ledger: %s  (v%d, last_ref: %s, updated: %s)\n",
		common.FormatAmount(balance.Available),
		common.FormatAmount(balance.Ledger),
		account.Version,
		common.ShortId(account.LastReference),
		account.UpdatedAt.Format("2006-01-02 15:04:05"))

	reconciled := true
	if err := dbService.ReconcileAccountBalance(ctx, account.AccountNumber); err != nil {
		reconciled = false
		fmt.Printf("│  RECONCILIATION MISMATCH: %v\n", err)
	}

	if recent > 0 {
		transactions, err := dbService.GetTransactionHistory(ctx, account.AccountNumber, recent, 0)
		if err != nil {
			return reconciled, fmt.Errorf("failed to get transactions: %w", err)
		}
		printRecentTransactions(transactions)
	}

	return reconciled, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	accountFlag := flag.String("account", "", "Filter by account number (optional)")
	recentFlag := flag.Int("recent", 5, "Number of recent transactions to show per account")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	accounts, err := loadAccounts(ctx, dbService, *accountFlag)
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("WALLET BALANCE REPORT", common.WideWidth)

	stats := balanceStats{}
	for _, account := range accounts {
		stats.totalAccounts++
		if !account.Active {
			stats.inactive++
		}
		reconciled, err := processAccount(ctx, account, dbService, *recentFlag)
		if err != nil {
			logger.Error("Failed to process account",
				zap.String("account_number", account.AccountNumber),
				zap.Error(err))
			continue
		}
		if !reconciled {
			stats.mismatched++
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts (%d inactive), %d reconciliation mismatches",
		stats.totalAccounts, stats.inactive, stats.mismatched)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("mismatched", stats.mismatched))
}
