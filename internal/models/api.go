package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the read view of an account consumed by the wallet balance controller
type Balance struct {
	AccountNumber string          `json:"account_number"`
	Available     decimal.Decimal `json:"available"`
	Ledger        decimal.Decimal `json:"ledger"`
}

// TransactionRecord represents a transaction in the account history
type TransactionRecord struct {
	Reference        string          `json:"reference"`
	Direction        string          `json:"direction"`
	Amount           decimal.Decimal `json:"amount"`
	Fee              decimal.Decimal `json:"fee"`
	BalanceAfter     decimal.Decimal `json:"balance_after"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	Status           string          `json:"status"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
