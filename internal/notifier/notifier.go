package notifier

import (
	"context"
	"sync"
	"time"

	"ewallet-webhook-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Type string

const (
	TypePaymentSuccess  Type = "payment_success"
	TypePaymentFailed   Type = "payment_failed"
	TypePaymentReversed Type = "payment_reversed"
	TypeTransferSuccess Type = "transfer_success"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxInFlight = 64
)

// Recipient is the account owner a notification is addressed to
type Recipient struct {
	CustomerId    string
	Name          string
	Email         string
	AccountNumber string
}

// Notification is the outcome descriptor handed to the mail/SMS collaborator
type Notification struct {
	Type             Type                `json:"type"`
	Channel          string              `json:"channel,omitempty"`
	CustomerId       string              `json:"customer_id"`
	Email            string              `json:"email"`
	AccountNumber    string              `json:"account_number"`
	Amount           decimal.Decimal     `json:"amount"`
	Reference        string              `json:"reference"`
	Balance          decimal.NullDecimal `json:"balance"`
	Reason           string              `json:"reason,omitempty"`
	RecipientName    string              `json:"recipient_name,omitempty"`
	RecipientAccount string              `json:"recipient_account,omitempty"`
	Description      string              `json:"description,omitempty"`
	Subject          string              `json:"subject"`
	HTML             string              `json:"html"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Sender delivers a rendered notification
type Sender interface {
	Send(ctx context.Context, notification Notification) error
}

// Notifier delivers notifications in the background. Notify never blocks on
// delivery and never reports delivery failures to the caller.
type Notifier struct {
	sender  Sender
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
}

func New(sender Sender, cfg models.NotifierConfig) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &Notifier{
		sender:  sender,
		timeout: timeout,
		slots:   make(chan struct{}, maxInFlight),
	}
}

func (n *Notifier) Notify(ctx context.Context, recipient Recipient, notification Notification) {
	if recipient.Email == "" {
		zap.L().Warn("No email for customer, skipping notification",
			zap.String("customer_id", recipient.CustomerId),
			zap.String("reference", notification.Reference))
		return
	}

	notification.CustomerId = recipient.CustomerId
	notification.Email = recipient.Email
	notification.AccountNumber = recipient.AccountNumber
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	subject, html, err := Render(recipient, notification)
	if err != nil {
		zap.L().Error("Failed to render notification",
			zap.String("type", string(notification.Type)),
			zap.String("reference", notification.Reference),
			zap.Error(err))
		return
	}
	notification.Subject = subject
	notification.HTML = html

	select {
	case n.slots <- struct{}{}:
	default:
		zap.L().Warn("Notification queue full, dropping notification",
			zap.String("type", string(notification.Type)),
			zap.String("reference", notification.Reference))
		return
	}

	// Delivery outlives the inbound request but keeps its values
	deliveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		defer func() { <-n.slots }()
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("Notification sender panicked", zap.Any("panic", r))
			}
		}()

		if err := n.sender.Send(deliveryCtx, notification); err != nil {
			zap.L().Error("Failed to send notification",
				zap.String("type", string(notification.Type)),
				zap.String("customer_id", notification.CustomerId),
				zap.String("reference", notification.Reference),
				zap.Error(err))
			return
		}
		zap.L().Info("Notification sent",
			zap.String("type", string(notification.Type)),
			zap.String("customer_id", notification.CustomerId),
			zap.String("reference", notification.Reference))
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
