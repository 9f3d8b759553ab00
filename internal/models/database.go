package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the balance effect of a ledger entry
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// TransactionStatus is the lifecycle state of a ledger entry
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Account represents a customer wallet (hot data)
type Account struct {
	Id            int64           `db:"id"`
	AccountNumber string          `db:"account_number"`
	CustomerId    string          `db:"customer_id"`
	CustomerName  string          `db:"customer_name"`
	CustomerEmail string          `db:"customer_email"`
	BankName      string          `db:"bank_name"`
	BankCode      string          `db:"bank_code"`
	WalletId      string          `db:"wallet_id"`
	Balance       decimal.Decimal `db:"balance"`
	Opening       decimal.Decimal `db:"opening_balance"`
	Active        bool            `db:"active"`
	Version       int64           `db:"version"`
	LastReference string          `db:"last_reference"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Transaction represents a ledger entry keyed by the provider reference
type Transaction struct {
	Reference        string            `db:"reference"`
	AccountNumber    string            `db:"account_number"`
	CustomerId       string            `db:"customer_id"`
	Direction        Direction         `db:"direction"`
	EventFamily      string            `db:"event_family"`
	Amount           decimal.Decimal   `db:"amount"`
	BalanceBefore    decimal.Decimal   `db:"balance_before"`
	BalanceAfter     decimal.Decimal   `db:"balance_after"`
	Fee              decimal.Decimal   `db:"fee"`
	CounterpartyName string            `db:"counterparty_name"`
	CounterpartyBank string            `db:"counterparty_bank"`
	Status           TransactionStatus `db:"status"`
	FailureReason    string            `db:"failure_reason"`
	CreatedAt        time.Time         `db:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at"`
}

// WebhookLog is the audit row for one inbound delivery
type WebhookLog struct {
	Id                string    `db:"id"`
	EventType         string    `db:"event_type"`
	Reference         string    `db:"reference"`
	Payload           []byte    `db:"payload"`
	SignatureVerified bool      `db:"signature_verified"`
	SourceIp          string    `db:"source_ip"`
	Processed         bool      `db:"processed"`
	Attempts          int       `db:"attempts"`
	LastError         string    `db:"last_error"`
	CreatedAt         time.Time `db:"created_at"`
	ProcessedAt       time.Time `db:"processed_at"`
}

// DeadLetter is an event whose local processing could not be completed
type DeadLetter struct {
	Id         string    `db:"id" json:"id"`
	Reference  string    `db:"reference" json:"reference"`
	EventType  string    `db:"event_type" json:"event_type"`
	Payload    []byte    `db:"payload" json:"payload"`
	Error      string    `db:"error" json:"error"`
	Terminal   bool      `db:"terminal" json:"terminal"`
	Attempts   int       `db:"attempts" json:"attempts"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	ReplayedAt time.Time `db:"replayed_at" json:"replayed_at,omitempty"`
}
