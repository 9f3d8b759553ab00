package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"ewallet-webhook-go/internal/events"
	"ewallet-webhook-go/internal/reconcile"
	"ewallet-webhook-go/internal/retry"
	"ewallet-webhook-go/internal/signature"
	"ewallet-webhook-go/internal/store"

	"go.uber.org/zap"
)

const (
	ackBody               = "00 Success"
	malformedEventBody    = "Malformed event"
	processingFailedBody  = "Processing failed"
	defaultMaxWebhookBody = 1 << 20
)

type Dispatcher interface {
	Handle(ctx context.Context, env events.Envelope) (*reconcile.Outcome, error)
}

type Publisher interface {
	Publish(ctx context.Context, logId, eventType, reference string, body []byte) error
}

type DeadLetterer interface {
	DeadLetter(ctx context.Context, job retry.Job, attempts int, cause error, terminal bool) error
}

type DeliveryLog interface {
	LogWebhookDelivery(ctx context.Context, params store.WebhookDeliveryParams) (string, error)
	MarkWebhookProcessed(ctx context.Context, id string, attempts int, processErr error) error
}

// WebhookHandlerConfig contains configuration for WebhookHandler. A non-nil
// Publisher hands verified events to the queue instead of applying them inline.
type WebhookHandlerConfig struct {
	Verifier     *signature.Verifier
	Header       string
	MaxBodyBytes int64
	Deliveries   DeliveryLog
	Dispatcher   Dispatcher
	DeadLetters  DeadLetterer
	Publisher    Publisher
}

// WebhookHandler serves provider event deliveries
type WebhookHandler struct {
	verifier     *signature.Verifier
	header       string
	maxBodyBytes int64
	deliveries   DeliveryLog
	dispatcher   Dispatcher
	deadLetters  DeadLetterer
	publisher    Publisher
}

func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	header := cfg.Header
	if header == "" {
		header = signature.DefaultHeader
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxWebhookBody
	}
	return &WebhookHandler{
		verifier:     cfg.Verifier,
		header:       header,
		maxBodyBytes: maxBody,
		deliveries:   cfg.Deliveries,
		dispatcher:   cfg.Dispatcher,
		deadLetters:  cfg.DeadLetters,
		publisher:    cfg.Publisher,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		writeText(w, http.StatusBadRequest, "Missing signature or body")
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(h.header)); err != nil {
		zap.L().Warn("Rejected webhook delivery",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		if errors.Is(err, signature.ErrInvalidSignature) {
			writeText(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
		writeText(w, http.StatusBadRequest, "Missing signature or body")
		return
	}

	env, err := events.Parse(body)
	if err != nil {
		zap.L().Warn("Rejected malformed webhook body", zap.Error(err))
		writeText(w, http.StatusBadRequest, malformedEventBody)
		return
	}

	logId, err := h.deliveries.LogWebhookDelivery(ctx, store.WebhookDeliveryParams{
		EventType:         env.Event,
		Reference:         env.Reference(),
		Payload:           body,
		SignatureVerified: true,
		SourceIp:          clientIp(r),
	})
	if err != nil {
		zap.L().Error("Failed to log webhook delivery",
			zap.String("event", env.Event),
			zap.String("reference", env.Reference()),
			zap.Error(err))
		writeText(w, http.StatusInternalServerError, processingFailedBody)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, logId, env.Event, env.Reference(), body); err != nil {
			h.markProcessed(ctx, logId, 0, err)
			writeText(w, http.StatusInternalServerError, processingFailedBody)
			return
		}
		writeText(w, http.StatusOK, ackBody)
		return
	}

	status, text := h.process(ctx, logId, env, body)
	writeText(w, status, text)
}

// process applies the event inline. Payloads that fail validation are rejected
// with 400. Other terminal failures are dead-lettered and acknowledged;
// transient ones return 500 so the provider redelivers.
func (h *WebhookHandler) process(ctx context.Context, logId string, env events.Envelope, body []byte) (int, string) {
	_, err := h.dispatcher.Handle(ctx, env)
	if err == nil {
		h.markProcessed(ctx, logId, 1, nil)
		return http.StatusOK, ackBody
	}

	if errors.Is(err, events.ErrMalformedEvent) {
		zap.L().Warn("Rejected invalid webhook payload",
			zap.String("event", env.Event),
			zap.String("reference", env.Reference()),
			zap.Error(err))
		h.markProcessed(ctx, logId, 1, err)
		return http.StatusBadRequest, malformedEventBody
	}

	if !reconcile.IsTerminal(err) {
		zap.L().Error("Transient webhook processing failure",
			zap.String("event", env.Event),
			zap.String("reference", env.Reference()),
			zap.Error(err))
		h.markProcessed(ctx, logId, 1, err)
		return http.StatusInternalServerError, processingFailedBody
	}

	job := retry.Job{Reference: env.Reference(), EventType: env.Event, Payload: body}
	dlErr := h.deadLetters.DeadLetter(ctx, job, 1, err, true)
	h.markProcessed(ctx, logId, 1, err)
	if !errors.Is(dlErr, retry.ErrDeadLettered) {
		return http.StatusInternalServerError, processingFailedBody
	}
	return http.StatusOK, ackBody
}

func (h *WebhookHandler) markProcessed(ctx context.Context, logId string, attempts int, processErr error) {
	if err := h.deliveries.MarkWebhookProcessed(ctx, logId, attempts, processErr); err != nil {
		zap.L().Warn("Failed to update webhook log",
			zap.String("webhook_log_id", logId),
			zap.Error(err))
	}
}
