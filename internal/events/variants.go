package events

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Family groups provider event names that share ledger semantics
type Family string

const (
	FamilyInboundCredit    Family = "inbound-credit"
	FamilyCheckoutSuccess  Family = "checkout-success"
	FamilyCheckoutFailure  Family = "checkout-failure"
	FamilyCheckoutReversal Family = "checkout-reversal"
	FamilyPayout           Family = "payout"
)

func (f Family) Valid() bool {
	switch f {
	case FamilyInboundCredit, FamilyCheckoutSuccess, FamilyCheckoutFailure, FamilyCheckoutReversal, FamilyPayout:
		return true
	}
	return false
}

// MinorUnits is the number of decimal places an NGN amount may carry
const MinorUnits = 2

// WholeMinorUnits reports whether d has no precision beyond kobo
func WholeMinorUnits(d decimal.Decimal) bool {
	return d.Equal(d.Round(MinorUnits))
}

// Target identifies the ledger entry an event settles
type Target struct {
	AccountNumber string
	Reference     string
	Amount        decimal.Decimal
}

// Event is one decoded, validated provider payload
type Event interface {
	Family() Family
	Target() Target
}

// InboundCredit is an interbank transfer received into a wallet (NIP)
type InboundCredit struct {
	AccountNumber string          `json:"accountNumber" validate:"required"`
	Reference     string          `json:"reference" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Fee           decimal.Decimal `json:"fee" validate:"gte=0"`
	SenderName    string          `json:"senderName"`
	SenderBank    string          `json:"senderBank"`
	Description   string          `json:"description"`
}

func (e *InboundCredit) Family() Family { return FamilyInboundCredit }
func (e *InboundCredit) Target() Target {
	return Target{AccountNumber: e.AccountNumber, Reference: e.Reference, Amount: e.Amount}
}

// CheckoutSuccess credits the recipient of a checkout payment
type CheckoutSuccess struct {
	RecipientAccountNumber string          `json:"recipientAccountNumber" validate:"required"`
	RecipientName          string          `json:"recipientName"`
	SenderName             string          `json:"senderName"`
	Reference              string          `json:"reference" validate:"required"`
	Amount                 decimal.Decimal `json:"amount" validate:"gt=0"`
}

func (e *CheckoutSuccess) Family() Family { return FamilyCheckoutSuccess }
func (e *CheckoutSuccess) Target() Target {
	return Target{AccountNumber: e.RecipientAccountNumber, Reference: e.Reference, Amount: e.Amount}
}

// CheckoutFailure records a checkout that did not settle
type CheckoutFailure struct {
	RecipientAccountNumber string          `json:"recipientAccountNumber" validate:"required"`
	Reference              string          `json:"reference" validate:"required"`
	Amount                 decimal.Decimal `json:"amount" validate:"gte=0"`
	Message                string          `json:"message"`
	Error                  string          `json:"error"`
}

func (e *CheckoutFailure) Family() Family { return FamilyCheckoutFailure }
func (e *CheckoutFailure) Target() Target {
	return Target{AccountNumber: e.RecipientAccountNumber, Reference: e.Reference, Amount: e.Amount}
}

// Reason picks the most specific failure text the provider sent
func (e *CheckoutFailure) Reason() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" {
		return e.Message
	}
	return "Checkout failed"
}

// CheckoutReversal debits a previously credited checkout payment
type CheckoutReversal struct {
	RecipientAccountNumber string          `json:"recipientAccountNumber" validate:"required"`
	RecipientName          string          `json:"recipientName"`
	Reference              string          `json:"reference" validate:"required"`
	Amount                 decimal.Decimal `json:"amount" validate:"gt=0"`
}

func (e *CheckoutReversal) Family() Family { return FamilyCheckoutReversal }
func (e *CheckoutReversal) Target() Target {
	return Target{AccountNumber: e.RecipientAccountNumber, Reference: e.Reference, Amount: e.Amount}
}

const PayoutStatusSuccess = "Success"

// Payout reports the settlement of an outbound transfer
type Payout struct {
	DebitAccountNumber  string          `json:"debitAccountNumber" validate:"required"`
	CreditAccountNumber string          `json:"creditAccountNumber"`
	CreditAccountName   string          `json:"creditAccountName"`
	PaymentReference    string          `json:"paymentReference" validate:"required"`
	Amount              decimal.Decimal `json:"amount" validate:"gt=0"`
	Fee                 decimal.Decimal `json:"fee" validate:"gte=0"`
	Status              string          `json:"status" validate:"required"`
}

func (e *Payout) Family() Family { return FamilyPayout }
func (e *Payout) Target() Target {
	return Target{AccountNumber: e.DebitAccountNumber, Reference: e.PaymentReference, Amount: e.Amount}
}

func (e *Payout) Succeeded() bool {
	return strings.EqualFold(strings.TrimSpace(e.Status), PayoutStatusSuccess)
}

// moneyFields returns the monetary fields of an event keyed by JSON name
func moneyFields(event Event) map[string]decimal.Decimal {
	switch e := event.(type) {
	case *InboundCredit:
		return map[string]decimal.Decimal{"amount": e.Amount, "fee": e.Fee}
	case *Payout:
		return map[string]decimal.Decimal{"amount": e.Amount, "fee": e.Fee}
	}
	return map[string]decimal.Decimal{"amount": event.Target().Amount}
}
