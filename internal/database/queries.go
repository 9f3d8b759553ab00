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

package database

const (
	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (account_number, customer_id, customer_name, customer_email,
		                      bank_name, bank_code, wallet_id, balance, opening_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetAccountByNumber = `
		SELECT id, account_number, customer_id, customer_name, customer_email, bank_name, bank_code,
		       wallet_id, balance, opening_balance, active, version, last_reference, created_at, updated_at
		FROM accounts
		WHERE account_number = ?`

	queryGetActiveAccountByNumber = queryGetAccountByNumber + ` AND active = 1`

	queryGetAccounts = `
		SELECT id, account_number, customer_id, customer_name, customer_email, bank_name, bank_code,
		       wallet_id, balance, opening_balance, active, version, last_reference, created_at, updated_at
		FROM accounts
		ORDER BY created_at, id`

	queryDeactivateAccount = `
		UPDATE accounts
		SET active = 0, updated_at = ?
		WHERE account_number = ?`

	queryUpdateAccountBalance = `
		UPDATE accounts
		SET balance = ?, last_reference = ?, version = version + 1, updated_at = ?
		WHERE account_number = ? AND version = ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO transactions (reference, account_number, customer_id, direction, event_family,
		                          amount, balance_before, balance_after, fee, counterparty_name,
		                          counterparty_bank, status, failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `
		SELECT reference, account_number, customer_id, direction, event_family, amount,
		       balance_before, balance_after, fee, counterparty_name, counterparty_bank,
		       status, failure_reason, created_at, updated_at
		FROM transactions
		WHERE reference = ?`

	queryCountTransactions = `
		SELECT COUNT(*) FROM transactions WHERE reference = ?`

	querySettlePendingTransaction = `
		UPDATE transactions
		SET status = 'completed', direction = ?, event_family = ?, amount = ?, balance_before = ?,
		    balance_after = ?, fee = ?, counterparty_name = ?, counterparty_bank = ?, updated_at = ?
		WHERE reference = ? AND status = 'pending'`

	queryMarkTransactionFailed = `
		UPDATE transactions
		SET status = 'failed', failure_reason = ?, updated_at = ?
		WHERE reference = ? AND status = 'pending'`

	queryGetTransactionHistory = `
		SELECT reference, account_number, customer_id, direction, event_family, amount,
		       balance_before, balance_after, fee, counterparty_name, counterparty_bank,
		       status, failure_reason, created_at, updated_at
		FROM transactions
		WHERE account_number = ?
		ORDER BY created_at DESC, reference DESC
		LIMIT ? OFFSET ?`

	queryGetSignedAmountsByStatus = `
		SELECT direction, amount
		FROM transactions
		WHERE account_number = ? AND status = ?`

	// Journal queries
	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_reference, account_type, account_id, debit, credit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	// Webhook log queries
	queryInsertWebhookLog = `
		INSERT INTO webhook_logs (id, event_type, reference, payload, signature_verified, source_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryMarkWebhookProcessed = `
		UPDATE webhook_logs
		SET processed = ?, attempts = ?, last_error = ?, processed_at = ?
		WHERE id = ?`

	queryGetWebhookLog = `
		SELECT id, event_type, reference, payload, signature_verified, source_ip,
		       processed, attempts, last_error, created_at, processed_at
		FROM webhook_logs
		WHERE id = ?`

	// Dead letter queries
	queryInsertDeadLetter = `
		INSERT INTO dead_letters (id, reference, event_type, payload, error, terminal, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetDeadLetter = `
		SELECT id, reference, event_type, payload, error, terminal, attempts, created_at, replayed_at
		FROM dead_letters
		WHERE id = ?`

	queryListDeadLetters = `
		SELECT id, reference, event_type, payload, error, terminal, attempts, created_at, replayed_at
		FROM dead_letters
		WHERE (? = 1 OR replayed_at IS NULL)
		ORDER BY created_at, id
		LIMIT ?`

	queryMarkDeadLetterReplayed = `
		UPDATE dead_letters
		SET replayed_at = ?
		WHERE id = ? AND replayed_at IS NULL`
)
