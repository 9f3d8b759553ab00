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

package reconcile

import (
	"context"
	"fmt"

	"ewallet-webhook-go/internal/events"
	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/notifier"
	"ewallet-webhook-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Status string

const (
	StatusApplied        Status = "applied"
	StatusAlreadyApplied Status = "already_applied"
	StatusRecorded       Status = "recorded"
	StatusSkipped        Status = "skipped"
	StatusIgnored        Status = "ignored"
)

// Outcome describes what handling one event did to the ledger
type Outcome struct {
	Event         string
	Family        events.Family
	Reference     string
	AccountNumber string
	Status        Status
	Transaction   *models.Transaction
}

// Mutated reports whether this delivery changed ledger state
func (o *Outcome) Mutated() bool {
	return o.Status == StatusApplied || o.Status == StatusRecorded
}

// Ledger is the part of the store the handlers write through
type Ledger interface {
	ApplyLedgerEvent(ctx context.Context, params store.ApplyLedgerEventParams) (*models.Transaction, bool, error)
	RecordFailedEvent(ctx context.Context, params store.RecordFailedEventParams) (*models.Transaction, bool, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipient notifier.Recipient, notification notifier.Notification)
}

type Handler interface {
	Handle(ctx context.Context, event events.Event) (*Outcome, error)
}

// DefaultHandlers returns one handler per event family
func DefaultHandlers(ledger Ledger, notify Notifier) map[events.Family]Handler {
	base := handlerBase{ledger: ledger, notify: notify}
	return map[events.Family]Handler{
		events.FamilyInboundCredit:    &InboundCreditHandler{base},
		events.FamilyCheckoutSuccess:  &CheckoutSuccessHandler{base},
		events.FamilyCheckoutFailure:  &CheckoutFailureHandler{base},
		events.FamilyCheckoutReversal: &CheckoutReversalHandler{base},
		events.FamilyPayout:           &PayoutHandler{base},
	}
}

type handlerBase struct {
	ledger Ledger
	notify Notifier
}

func unexpectedEvent(family events.Family, event events.Event) error {
	return fmt.Errorf("%w: %s handler received %T", events.ErrMalformedEvent, family, event)
}

// apply runs the atomic ledger mutation and notifies on a fresh application
func (h handlerBase) apply(ctx context.Context, params store.ApplyLedgerEventParams, notification notifier.Notification) (*Outcome, error) {
	outcome := &Outcome{
		Family:        events.Family(params.EventFamily),
		Reference:     params.Reference,
		AccountNumber: params.AccountNumber,
	}

	transaction, applied, err := h.ledger.ApplyLedgerEvent(ctx, params)
	if err != nil {
		return nil, err
	}
	outcome.Transaction = transaction
	if !applied {
		outcome.Status = StatusAlreadyApplied
		return outcome, nil
	}
	outcome.Status = StatusApplied

	notification.Amount = params.Amount
	notification.Reference = params.Reference
	notification.Balance = decimal.NewNullDecimal(transaction.BalanceAfter)
	h.notifyOwner(ctx, params.AccountNumber, notification)
	return outcome, nil
}

func (h handlerBase) notifyOwner(ctx context.Context, accountNumber string, notification notifier.Notification) {
	if h.notify == nil {
		return
	}
	account, err := h.ledger.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		zap.L().Warn("Unable to resolve notification recipient",
			zap.String("account_number", accountNumber),
			zap.String("reference", notification.Reference),
			zap.Error(err))
		return
	}
	h.notify.Notify(ctx, notifier.Recipient{
		CustomerId:    account.CustomerId,
		Name:          account.CustomerName,
		Email:         account.CustomerEmail,
		AccountNumber: account.AccountNumber,
	}, notification)
}

type InboundCreditHandler struct{ handlerBase }

func (h *InboundCreditHandler) Handle(ctx context.Context, event events.Event) (*Outcome, error) {
	e, ok := event.(*events.InboundCredit)
	if !ok {
		return nil, unexpectedEvent(events.FamilyInboundCredit, event)
	}
	return h.apply(ctx, store.ApplyLedgerEventParams{
		AccountNumber:    e.AccountNumber,
		Reference:        e.Reference,
		EventFamily:      string(events.FamilyInboundCredit),
		Direction:        models.DirectionCredit,
		Amount:           e.Amount,
		Fee:              e.Fee,
		CounterpartyName: e.SenderName,
		CounterpartyBank: e.SenderBank,
	}, notifier.Notification{
		Type:        notifier.TypePaymentSuccess,
		Channel:     "nip",
		Description: e.Description,
	})
}

type CheckoutSuccessHandler struct{ handlerBase }

func (h *CheckoutSuccessHandler) Handle(ctx context.Context, event events.Event) (*Outcome, error) {
	e, ok := event.(*events.CheckoutSuccess)
	if !ok {
		return nil, unexpectedEvent(events.FamilyCheckoutSuccess, event)
	}
	counterparty := e.SenderName
	if counterparty == "" {
		counterparty = e.RecipientName
	}
	return h.apply(ctx, store.ApplyLedgerEventParams{
		AccountNumber:    e.RecipientAccountNumber,
		Reference:        e.Reference,
		EventFamily:      string(events.FamilyCheckoutSuccess),
		Direction:        models.DirectionCredit,
		Amount:           e.Amount,
		CounterpartyName: counterparty,
	}, notifier.Notification{
		Type:    notifier.TypePaymentSuccess,
		Channel: "checkout",
	})
}

// CheckoutFailureHandler records the failure without touching the balance
type CheckoutFailureHandler struct{ handlerBase }

func (h *CheckoutFailureHandler) Handle(ctx context.Context, event events.Event) (*Outcome, error) {
	e, ok := event.(*events.CheckoutFailure)
	if !ok {
		return nil, unexpectedEvent(events.FamilyCheckoutFailure, event)
	}

	reason := e.Reason()
	transaction, recorded, err := h.ledger.RecordFailedEvent(ctx, store.RecordFailedEventParams{
		AccountNumber: e.RecipientAccountNumber,
		Reference:     e.Reference,
		EventFamily:   string(events.FamilyCheckoutFailure),
		Direction:     models.DirectionCredit,
		Amount:        e.Amount,
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Family:        events.FamilyCheckoutFailure,
		Reference:     e.Reference,
		AccountNumber: e.RecipientAccountNumber,
		Transaction:   transaction,
		Status:        StatusAlreadyApplied,
	}
	if !recorded {
		return outcome, nil
	}
	outcome.Status = StatusRecorded

	h.notifyOwner(ctx, e.RecipientAccountNumber, notifier.Notification{
		Type:      notifier.TypePaymentFailed,
		Channel:   "checkout",
		Amount:    e.Amount,
		Reference: e.Reference,
		Reason:    reason,
	})
	return outcome, nil
}

type CheckoutReversalHandler struct{ handlerBase }

func (h *CheckoutReversalHandler) Handle(ctx context.Context, event events.Event) (*Outcome, error) {
	e, ok := event.(*events.CheckoutReversal)
	if !ok {
		return nil, unexpectedEvent(events.FamilyCheckoutReversal, event)
	}
	return h.apply(ctx, store.ApplyLedgerEventParams{
		AccountNumber:    e.RecipientAccountNumber,
		Reference:        e.Reference,
		EventFamily:      string(events.FamilyCheckoutReversal),
		Direction:        models.DirectionDebit,
		Amount:           e.Amount,
		CounterpartyName: e.RecipientName,
	}, notifier.Notification{
		Type:    notifier.TypePaymentReversed,
		Channel: "checkout",
	})
}

// PayoutHandler debits settled payouts. Non-success statuses are left to a
// compensating event.
type PayoutHandler struct{ handlerBase }

func (h *PayoutHandler) Handle(ctx context.Context, event events.Event) (*Outcome, error) {
	e, ok := event.(*events.Payout)
	if !ok {
		return nil, unexpectedEvent(events.FamilyPayout, event)
	}

	if !e.Succeeded() {
		zap.L().Info("Payout not successful, no ledger change",
			zap.String("reference", e.PaymentReference),
			zap.String("status", e.Status))
		return &Outcome{
			Family:        events.FamilyPayout,
			Reference:     e.PaymentReference,
			AccountNumber: e.DebitAccountNumber,
			Status:        StatusSkipped,
		}, nil
	}

	counterparty := e.CreditAccountName
	if counterparty == "" {
		counterparty = e.CreditAccountNumber
	}
	return h.apply(ctx, store.ApplyLedgerEventParams{
		AccountNumber:    e.DebitAccountNumber,
		Reference:        e.PaymentReference,
		EventFamily:      string(events.FamilyPayout),
		Direction:        models.DirectionDebit,
		Amount:           e.Amount,
		Fee:              e.Fee,
		CounterpartyName: counterparty,
	}, notifier.Notification{
		Type:             notifier.TypeTransferSuccess,
		Channel:          "payout",
		RecipientName:    e.CreditAccountName,
		RecipientAccount: e.CreditAccountNumber,
	})
}
