package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ewallet-webhook-go/internal/database"
	"ewallet-webhook-go/internal/events"
	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/reconcile"
	"ewallet-webhook-go/internal/retry"
	"ewallet-webhook-go/internal/signature"
	"ewallet-webhook-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

type testServer struct {
	handler  http.Handler
	db       *database.Service
	verifier *signature.Verifier
}

type serverOptions struct {
	dispatcher Dispatcher
	publisher  Publisher
	rateLimit  int
	maxBody    int64
}

func setupServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "wallet.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.CreateAccount(context.Background(), store.CreateAccountParams{
		AccountNumber:  "001",
		CustomerId:     "cust-001",
		CustomerName:   "Ada Obi",
		OpeningBalance: decimal.RequireFromString("1000.00"),
	})
	require.NoError(t, err)

	dispatcher := opts.dispatcher
	if dispatcher == nil {
		dispatcher = reconcile.NewDispatcher(events.NewRegistry(), reconcile.DefaultHandlers(db, nil))
	}
	verifier := signature.NewVerifier(testSecret)
	webhooks := NewWebhookHandler(WebhookHandlerConfig{
		Verifier:     verifier,
		MaxBodyBytes: opts.maxBody,
		Deliveries:   db,
		Dispatcher:   dispatcher,
		DeadLetters:  retry.NewSupervisor(retry.Policy{MaxAttempts: 1}, reconcile.IsTerminal, db),
		Publisher:    opts.publisher,
	})

	rateLimit := opts.rateLimit
	if rateLimit == 0 {
		rateLimit = 100
	}
	return &testServer{
		handler: NewRouter(RouterConfig{
			Ledger:     NewLedgerService(db),
			Webhooks:   webhooks,
			RateLimit:  rateLimit,
			RateWindow: time.Minute,
		}),
		db:       db,
		verifier: verifier,
	}
}

func (s *testServer) deliver(body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/embedly", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(signature.DefaultHeader, sig)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) deliverSigned(body string) *httptest.ResponseRecorder {
	return s.deliver(body, s.verifier.Sign([]byte(body)))
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

const nipR1 = `{"event":"nip","data":{"accountNumber":"001","reference":"R1","amount":500.00,"senderName":"John"}}`

func TestWebhook_AppliesAndAcknowledges(t *testing.T) {
	s := setupServer(t, serverOptions{})

	rec := s.deliverSigned(nipR1)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "00 Success", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	balance, err := s.db.GetBalance(context.Background(), "001")
	require.NoError(t, err)
	assert.Equal(t, "1500.00", balance.Available.StringFixed(2))

	// Replays are acknowledged without a second credit
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, s.deliverSigned(nipR1).Code)
	}
	balance, err = s.db.GetBalance(context.Background(), "001")
	require.NoError(t, err)
	assert.Equal(t, "1500.00", balance.Available.StringFixed(2))
}

func TestWebhook_SignatureRejections(t *testing.T) {
	s := setupServer(t, serverOptions{})

	rec := s.deliver(nipR1, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing signature or body", rec.Body.String())

	rec = s.deliver(nipR1, strings.Repeat("ab", 64))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid signature", rec.Body.String())

	tampered := strings.Replace(nipR1, "500.00", "900.00", 1)
	rec = s.deliver(tampered, s.verifier.Sign([]byte(nipR1)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	balance, err := s.db.GetBalance(context.Background(), "001")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", balance.Available.StringFixed(2))
}

func TestWebhook_MalformedBody(t *testing.T) {
	s := setupServer(t, serverOptions{})

	rec := s.deliverSigned(`{"event":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.deliverSigned(`{"data":{"reference":"R1"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_InvalidPayloadRejected(t *testing.T) {
	s := setupServer(t, serverOptions{})

	tests := []struct {
		name string
		body string
	}{
		{"missing account", `{"event":"nip","data":{"reference":"R9","amount":500.00}}`},
		{"non-numeric amount", `{"event":"nip","data":{"accountNumber":"001","reference":"R9","amount":"abc"}}`},
		{"sub-kobo amount", `{"event":"nip","data":{"accountNumber":"001","reference":"R5","amount":0.004}}`},
		{"payout without status", `{"event":"payout","data":{"debitAccountNumber":"001","paymentReference":"P9","amount":70}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.deliverSigned(tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Malformed event", rec.Body.String())
		})
	}

	balance, err := s.db.GetBalance(context.Background(), "001")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", balance.Available.StringFixed(2))

	letters, err := s.db.ListDeadLetters(context.Background(), 10, true)
	require.NoError(t, err)
	assert.Empty(t, letters)

	_, err = s.db.GetTransaction(context.Background(), "R5")
	assert.ErrorIs(t, err, store.ErrTransactionNotFound)
}

func TestWebhook_PayloadTooLarge(t *testing.T) {
	s := setupServer(t, serverOptions{maxBody: 16})
	rec := s.deliverSigned(nipR1)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhook_UnknownEventAcknowledged(t *testing.T) {
	s := setupServer(t, serverOptions{})
	rec := s.deliverSigned(`{"event":"wallet.created","data":{"reference":"W1"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "00 Success", rec.Body.String())
}

func TestWebhook_TerminalFailureDeadLettered(t *testing.T) {
	s := setupServer(t, serverOptions{})

	body := `{"event":"nip","data":{"accountNumber":"999","reference":"R7","amount":10}}`
	rec := s.deliverSigned(body)
	assert.Equal(t, http.StatusOK, rec.Code)

	letters, err := s.db.ListDeadLetters(context.Background(), 10, false)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "R7", letters[0].Reference)
	assert.Equal(t, "nip", letters[0].EventType)
	assert.True(t, letters[0].Terminal)
	assert.JSONEq(t, body, string(letters[0].Payload))
}

type failingDispatcher struct{ err error }

func (d failingDispatcher) Handle(context.Context, events.Envelope) (*reconcile.Outcome, error) {
	return nil, d.err
}

func TestWebhook_TransientFailureReturns500(t *testing.T) {
	s := setupServer(t, serverOptions{dispatcher: failingDispatcher{err: errors.New("database is locked")}})

	rec := s.deliverSigned(nipR1)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Processing failed", rec.Body.String())

	letters, err := s.db.ListDeadLetters(context.Background(), 10, true)
	require.NoError(t, err)
	assert.Empty(t, letters)
}

type recordingPublisher struct {
	published []string
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, logId, eventType, reference string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, eventType+":"+reference)
	return nil
}

func TestWebhook_QueueMode(t *testing.T) {
	publisher := &recordingPublisher{}
	s := setupServer(t, serverOptions{publisher: publisher})

	rec := s.deliverSigned(nipR1)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"nip:R1"}, publisher.published)

	// Applied by the consumer, not the request
	balance, err := s.db.GetBalance(context.Background(), "001")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", balance.Available.StringFixed(2))

	publisher.err = errors.New("broker unavailable")
	assert.Equal(t, http.StatusInternalServerError, s.deliverSigned(nipR1).Code)
}

func TestWebhook_RateLimited(t *testing.T) {
	s := setupServer(t, serverOptions{rateLimit: 2})

	assert.Equal(t, http.StatusOK, s.deliverSigned(nipR1).Code)
	assert.Equal(t, http.StatusOK, s.deliverSigned(nipR1).Code)

	rec := s.deliverSigned(nipR1)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "Too many webhook requests")
}

func TestClientLimiterPerClient(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newClientLimiter(1, time.Minute)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.2"))

	now = now.Add(time.Minute)
	assert.True(t, limiter.allow("10.0.0.1"))

	now = now.Add(10 * time.Minute)
	limiter.allow("10.0.0.3")
	assert.Len(t, limiter.clients, 1)
}

func TestGetBalance(t *testing.T) {
	s := setupServer(t, serverOptions{})
	require.Equal(t, http.StatusOK, s.deliverSigned(nipR1).Code)

	rec := s.get("/accounts/001/balance")
	require.Equal(t, http.StatusOK, rec.Code)
	var body balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, balanceResponse{AccountNumber: "001", Available: "1500.00", Ledger: "1500.00"}, body)

	rec = s.get("/accounts/404/balance")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTransactions(t *testing.T) {
	s := setupServer(t, serverOptions{})
	require.Equal(t, http.StatusOK, s.deliverSigned(nipR1).Code)
	reversal := `{"event":"checkout.reversal.success","data":{"recipientAccountNumber":"001","reference":"R3","amount":300}}`
	require.Equal(t, http.StatusOK, s.deliverSigned(reversal).Code)

	rec := s.get("/accounts/001/transactions")
	require.Equal(t, http.StatusOK, rec.Code)
	var body historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, defaultHistoryLimit, body.Limit)
	require.Len(t, body.Transactions, 2)

	refs := map[string]transactionResponse{}
	for _, tx := range body.Transactions {
		refs[tx.Reference] = tx
	}
	assert.Equal(t, "credit", refs["R1"].Direction)
	assert.Equal(t, "1500.00", refs["R1"].BalanceAfter)
	assert.Equal(t, "debit", refs["R3"].Direction)
	assert.Equal(t, "1200.00", refs["R3"].BalanceAfter)

	rec = s.get("/accounts/001/transactions?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Transactions, 1)
	assert.Equal(t, 1, body.Offset)

	assert.Equal(t, http.StatusBadRequest, s.get("/accounts/001/transactions?limit=ten").Code)
	assert.Equal(t, http.StatusNotFound, s.get("/accounts/404/transactions").Code)
}

func TestHealthz(t *testing.T) {
	s := setupServer(t, serverOptions{})
	rec := s.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRecovererHandlesPanics(t *testing.T) {
	router := NewRouter(RouterConfig{
		Webhooks: http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/embedly", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
