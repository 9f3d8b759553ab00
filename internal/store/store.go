package store

import (
	"context"
	"errors"

	"ewallet-webhook-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrAccountNotFound        = errors.New("account not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrDeadLetterNotFound     = errors.New("dead letter not found")
	ErrAccountExists          = errors.New("account already exists")
	ErrInvalidLedgerEvent     = errors.New("invalid ledger event")
)

// CreateAccountParams contains the parameters for opening a wallet account.
type CreateAccountParams struct {
	AccountNumber  string
	CustomerId     string
	CustomerName   string
	CustomerEmail  string
	BankName       string
	BankCode       string
	WalletId       string
	OpeningBalance decimal.Decimal
}

// ApplyLedgerEventParams describes one balance-affecting provider event.
// Reference is the provider reference and doubles as the idempotency key.
type ApplyLedgerEventParams struct {
	AccountNumber    string
	Reference        string
	EventFamily      string
	Direction        models.Direction
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	CounterpartyName string
	CounterpartyBank string
}

// RecordFailedEventParams describes a provider event that settled as failed.
type RecordFailedEventParams struct {
	AccountNumber string
	Reference     string
	EventFamily   string
	Direction     models.Direction
	Amount        decimal.Decimal
	Reason        string
}

// PendingTransactionParams describes an entry created ahead of settlement by
// the outbound-call path. Pending entries never move the available balance.
type PendingTransactionParams struct {
	AccountNumber    string
	Reference        string
	EventFamily      string
	Direction        models.Direction
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	CounterpartyName string
	CounterpartyBank string
}

// WebhookDeliveryParams captures one inbound delivery for the audit log.
type WebhookDeliveryParams struct {
	EventType         string
	Reference         string
	Payload           []byte
	SignatureVerified bool
	SourceIp          string
}

// LedgerStore defines the contract the reconciliation engine needs from storage.
type LedgerStore interface {
	// --- Accounts ---
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	GetAccounts(ctx context.Context) ([]models.Account, error)
	DeactivateAccount(ctx context.Context, accountNumber string) error

	// --- Balances ---
	GetBalance(ctx context.Context, accountNumber string) (models.Balance, error)
	ReconcileAccountBalance(ctx context.Context, accountNumber string) error

	// --- Transactions ---
	ApplyLedgerEvent(ctx context.Context, params ApplyLedgerEventParams) (*models.Transaction, bool, error)
	RecordFailedEvent(ctx context.Context, params RecordFailedEventParams) (*models.Transaction, bool, error)
	CreatePendingTransaction(ctx context.Context, params PendingTransactionParams) (*models.Transaction, error)
	GetTransaction(ctx context.Context, reference string) (*models.Transaction, error)
	GetTransactionHistory(ctx context.Context, accountNumber string, limit, offset int) ([]models.Transaction, error)
	CountTransactions(ctx context.Context, reference string) (int, error)

	// --- Webhook deliveries ---
	LogWebhookDelivery(ctx context.Context, params WebhookDeliveryParams) (string, error)
	MarkWebhookProcessed(ctx context.Context, id string, attempts int, processErr error) error

	// --- Dead letters ---
	SaveDeadLetter(ctx context.Context, letter models.DeadLetter) error
	GetDeadLetter(ctx context.Context, id string) (*models.DeadLetter, error)
	ListDeadLetters(ctx context.Context, limit int, includeReplayed bool) ([]models.DeadLetter, error)
	MarkDeadLetterReplayed(ctx context.Context, id string) error

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
