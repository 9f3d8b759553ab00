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
	"errors"
	"flag"
	"fmt"
	"regexp"

	"ewallet-webhook-go/internal/common"
	"ewallet-webhook-go/internal/config"
	"ewallet-webhook-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	emailRegex         = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	accountNumberRegex = regexp.MustCompile(`^[0-9]{10}$`)
)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

// validateAccountNumber accepts 10-digit NUBAN account numbers
func validateAccountNumber(accountNumber string) error {
	if !accountNumberRegex.MatchString(accountNumber) {
		return fmt.Errorf("account number must be 10 digits, got %q", accountNumber)
	}
	return nil
}

func parseOpeningBalance(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid opening balance %q: %w", value, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("opening balance cannot be negative")
	}
	return amount, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	accountFlag := flag.String("account", "", "10-digit wallet account number (required)")
	nameFlag := flag.String("name", "", "Customer's full name (required)")
	emailFlag := flag.String("email", "", "Customer's email address (required)")
	customerFlag := flag.String("customer-id", "", "Customer id (default: generated)")
	bankFlag := flag.String("bank", "", "Bank name")
	bankCodeFlag := flag.String("bank-code", "", "Bank code")
	walletFlag := flag.String("wallet", "", "Provider wallet id")
	openingFlag := flag.String("opening", "0", "Opening balance")
	deactivateFlag := flag.Bool("deactivate", false, "Deactivate the existing account instead of creating one")
	flag.Parse()

	if err := validateAccountNumber(*accountFlag); err != nil {
		zap.L().Fatal("Invalid account number", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if *deactivateFlag {
		if err := dbService.DeactivateAccount(ctx, *accountFlag); err != nil {
			zap.L().Fatal("Failed to deactivate account", zap.Error(err))
		}
		fmt.Printf("Account %s deactivated\n", *accountFlag)
		return
	}

	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	opening, err := parseOpeningBalance(*openingFlag)
	if err != nil {
		zap.L().Fatal("Invalid opening balance", zap.Error(err))
	}

	customerId := *customerFlag
	if customerId == "" {
		customerId = uuid.New().String()
	}

	zap.L().Info("Creating account",
		zap.String("account_number", *accountFlag),
		zap.String("customer_id", customerId),
		zap.String("email", *emailFlag))

	account, err := dbService.CreateAccount(ctx, store.CreateAccountParams{
		AccountNumber:  *accountFlag,
		CustomerId:     customerId,
		CustomerName:   *nameFlag,
		CustomerEmail:  *emailFlag,
		BankName:       *bankFlag,
		BankCode:       *bankCodeFlag,
		WalletId:       *walletFlag,
		OpeningBalance: opening,
	})
	if err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			zap.L().Fatal("Account already exists", zap.String("account_number", *accountFlag))
		}
		zap.L().Fatal("Failed to create account", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT CREATED", common.DefaultWidth)
	fmt.Printf("Account:  %s\n", account.AccountNumber)
	fmt.Printf("Customer: %s (%s)\n", account.CustomerName, account.CustomerId)
	fmt.Printf("Email:    %s\n", account.CustomerEmail)
	fmt.Printf("Balance:  %s\n", common.FormatAmount(account.Balance))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
