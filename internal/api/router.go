package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig contains configuration for NewRouter
type RouterConfig struct {
	Ledger     *LedgerService
	Webhooks   http.Handler
	RateLimit  int
	RateWindow time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	h := &handlers{ledger: cfg.Ledger}
	r.Get("/healthz", h.health)
	r.With(rateLimit(cfg.RateLimit, cfg.RateWindow)).Post("/webhooks/embedly", cfg.Webhooks.ServeHTTP)
	r.Route("/accounts/{accountNumber}", func(r chi.Router) {
		r.Get("/balance", h.balance)
		r.Get("/transactions", h.transactions)
	})
	return r
}

type handlers struct {
	ledger *LedgerService
}

type errorResponse struct {
	Error string `json:"error"`
}

type balanceResponse struct {
	AccountNumber string `json:"account_number"`
	Available     string `json:"available"`
	Ledger        string `json:"ledger"`
}

type transactionResponse struct {
	Reference        string    `json:"reference"`
	Direction        string    `json:"direction"`
	Amount           string    `json:"amount"`
	Fee              string    `json:"fee"`
	BalanceAfter     string    `json:"balance_after"`
	CounterpartyName string    `json:"counterparty_name,omitempty"`
	Status           string    `json:"status"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type historyResponse struct {
	AccountNumber string                `json:"account_number"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
	Transactions  []transactionResponse `json:"transactions"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) balance(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")
	balance, err := h.ledger.GetBalance(r.Context(), accountNumber)
	if errors.Is(err, store.ErrAccountNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "account not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(balance))
}

func (h *handlers) transactions(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "offset must be an integer"})
		return
	}

	records, err := h.ledger.GetTransactionHistory(r.Context(), accountNumber, limit, offset)
	if errors.Is(err, store.ErrAccountNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "account not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	limit, offset = normalizePage(limit, offset)
	resp := historyResponse{
		AccountNumber: accountNumber,
		Limit:         limit,
		Offset:        offset,
		Transactions:  make([]transactionResponse, len(records)),
	}
	for i, rec := range records {
		resp.Transactions[i] = transactionResponse{
			Reference:        rec.Reference,
			Direction:        rec.Direction,
			Amount:           rec.Amount.StringFixed(2),
			Fee:              rec.Fee.StringFixed(2),
			BalanceAfter:     rec.BalanceAfter.StringFixed(2),
			CounterpartyName: rec.CounterpartyName,
			Status:           rec.Status,
			FailureReason:    rec.FailureReason,
			CreatedAt:        rec.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func toBalanceResponse(b models.Balance) balanceResponse {
	return balanceResponse{
		AccountNumber: b.AccountNumber,
		Available:     b.Available.StringFixed(2),
		Ledger:        b.Ledger.StringFixed(2),
	}
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("HTTP request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to write response", zap.Error(err))
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		zap.L().Warn("Failed to write response", zap.Error(err))
	}
}
