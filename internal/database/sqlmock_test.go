package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"ewallet-webhook-go/internal/models"
	"ewallet-webhook-go/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumns = []string{"id", "account_number", "customer_id", "customer_name", "customer_email",
	"bank_name", "bank_code", "wallet_id", "balance", "opening_balance", "active", "version",
	"last_reference", "created_at", "updated_at"}

var transactionColumns = []string{"reference", "account_number", "customer_id", "direction", "event_family",
	"amount", "balance_before", "balance_after", "fee", "counterparty_name", "counterparty_bank",
	"status", "failure_reason", "created_at", "updated_at"}

func setupMockDb(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Service{db: db}, mock
}

func accountRow(balance string, version int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(accountColumns).
		AddRow(1, testAccount, "cust-1", "Ada Obi", "ada@example.com", "", "", "", balance, "0", true, version, "", now, now)
}

func TestApplyLedgerEvent_BeginFailure(t *testing.T) {
	service, mock := setupMockDb(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, applied, err := service.ApplyLedgerEvent(context.Background(), credit("R1", "500"))
	require.Error(t, err)
	assert.False(t, applied)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyLedgerEvent_VersionMovedRollsBack(t *testing.T) {
	service, mock := setupMockDb(t)

	mock.ExpectBegin()
	mock.ExpectQuery(queryGetTransaction).WithArgs("R1").WillReturnRows(sqlmock.NewRows(transactionColumns))
	mock.ExpectQuery(queryGetActiveAccountByNumber).WithArgs(testAccount).WillReturnRows(accountRow("1000.00", 3))
	mock.ExpectExec(queryInsertTransaction).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(queryInsertJournalEntry).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(queryInsertJournalEntry).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(queryUpdateAccountBalance).
		WithArgs("1500.00", "R1", sqlmock.AnyArg(), testAccount, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, applied, err := service.ApplyLedgerEvent(context.Background(), credit("R1", "500"))
	assert.ErrorIs(t, err, store.ErrConcurrentModification)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyLedgerEvent_LostInsertRaceReturnsWinner(t *testing.T) {
	service, mock := setupMockDb(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(queryGetTransaction).WithArgs("R1").WillReturnRows(sqlmock.NewRows(transactionColumns))
	mock.ExpectQuery(queryGetActiveAccountByNumber).WithArgs(testAccount).WillReturnRows(accountRow("1000.00", 1))
	mock.ExpectExec(queryInsertTransaction).WillReturnError(sqlite3.Error{
		Code:         sqlite3.ErrConstraint,
		ExtendedCode: sqlite3.ErrConstraintPrimaryKey,
	})
	mock.ExpectRollback()
	mock.ExpectQuery(queryGetTransaction).WithArgs("R1").WillReturnRows(
		sqlmock.NewRows(transactionColumns).AddRow("R1", testAccount, "cust-1", "credit", "inbound-credit",
			"500", "1000.00", "1500.00", "10", "John Doe", "", "completed", "", now, now))

	result, applied, err := service.ApplyLedgerEvent(context.Background(), credit("R1", "500"))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "1500", result.BalanceAfter.String())
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyLedgerEvent_ExistenceCheckFailure(t *testing.T) {
	service, mock := setupMockDb(t)

	mock.ExpectBegin()
	mock.ExpectQuery(queryGetTransaction).WithArgs("R1").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, _, err := service.ApplyLedgerEvent(context.Background(), credit("R1", "500"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrTransactionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyLedgerEvent_CommitFailure(t *testing.T) {
	service, mock := setupMockDb(t)

	mock.ExpectBegin()
	mock.ExpectQuery(queryGetTransaction).WithArgs("R1").WillReturnRows(sqlmock.NewRows(transactionColumns))
	mock.ExpectQuery(queryGetActiveAccountByNumber).WithArgs(testAccount).WillReturnRows(accountRow("0", 1))
	mock.ExpectExec(queryInsertTransaction).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(queryInsertJournalEntry).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(queryInsertJournalEntry).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(queryUpdateAccountBalance).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, applied, err := service.ApplyLedgerEvent(context.Background(), credit("R1", "500"))
	require.Error(t, err)
	assert.False(t, applied)
	assert.Contains(t, err.Error(), "failed to commit transaction")
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, true},
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"check", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}, false},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, false},
		{"plain", errors.New("UNIQUE constraint failed"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isUniqueViolation(tt.err))
		})
	}
}
