package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// PostgresLedger is a durable backing for the reconciliation ledger. The
// CAS contract is carried by the database itself: a transition is an UPDATE
// guarded by the expected current state, so concurrent deliveries racing on
// the same attempt resolve to exactly one winner regardless of process count.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a ledger backed by the given connection pool
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

var _ ports.Ledger = (*PostgresLedger)(nil)

// Put inserts a new attempt after checking, under a per-invoice advisory
// lock, that no attempt for the invoice is still in flight. The advisory
// lock (held until commit) also serializes two concurrent Puts for an
// invoice with no rows yet, where there is nothing to row-lock.
func (l *PostgresLedger) Put(ctx context.Context, attempt *domain.PaymentAttempt) error {
	if attempt.AttemptID == "" || attempt.InvoiceID == "" {
		return domain.ErrValidationMissingField.WithDetail("field", "attempt_id/invoice_id")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, attempt.InvoiceID,
	); err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "lock invoice", err)
	}

	var inFlight int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM payment_attempts
		WHERE invoice_id = $1 AND state IN ($2, $3)`,
		attempt.InvoiceID, domain.AttemptStateInitialized, domain.AttemptStateAwaitingCapture,
	).Scan(&inFlight)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "check in-flight attempts", err)
	}
	if inFlight > 0 {
		return domain.ErrAttemptInFlight.WithDetail("invoice_id", attempt.InvoiceID)
	}

	createdAt := attempt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payment_attempts
			(attempt_id, order_id, invoice_id, method, state, gateway_transaction_id,
			 amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		attempt.AttemptID, attempt.OrderID, attempt.InvoiceID, attempt.Method,
		attempt.State, attempt.GatewayTransactionID,
		attempt.Amount.String(), attempt.Currency, createdAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "insert attempt", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "commit transaction", err)
	}
	return nil
}

// Get returns the newest attempt for an invoice
func (l *PostgresLedger) Get(ctx context.Context, invoiceID string) (*domain.PaymentAttempt, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT attempt_id, order_id, invoice_id, method, state, gateway_transaction_id,
		       amount, currency, created_at, updated_at
		FROM payment_attempts
		WHERE invoice_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, invoiceID)

	attempt, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound.WithDetail("invoice_id", invoiceID)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeLedgerError, "get attempt", err)
	}
	return attempt, nil
}

// GetByAttemptID returns the attempt with the given id
func (l *PostgresLedger) GetByAttemptID(ctx context.Context, attemptID string) (*domain.PaymentAttempt, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT attempt_id, order_id, invoice_id, method, state, gateway_transaction_id,
		       amount, currency, created_at, updated_at
		FROM payment_attempts
		WHERE attempt_id = $1`, attemptID)

	attempt, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound.WithDetail("attempt_id", attemptID)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeLedgerError, "get attempt", err)
	}
	return attempt, nil
}

// Transition performs the CAS as a conditional UPDATE. RowsAffected==0 maps
// to the contract's false return: either the state moved concurrently or the
// transition is not legal from the current state.
func (l *PostgresLedger) Transition(ctx context.Context, attemptID string, from, to domain.AttemptState) (bool, error) {
	if !from.IsValid() || !to.IsValid() {
		return false, domain.ErrValidationFailed.WithDetail("state", string(from)+"->"+string(to))
	}
	if !domain.CanTransition(from, to) {
		return false, nil
	}

	tag, err := l.pool.Exec(ctx, `
		UPDATE payment_attempts
		SET state = $1, updated_at = $2
		WHERE attempt_id = $3 AND state = $4`,
		to, time.Now().UTC(), attemptID, from,
	)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeLedgerError, "transition attempt", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "attempt missing" from the benign CAS miss.
		var exists bool
		if err := l.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM payment_attempts WHERE attempt_id = $1)`,
			attemptID).Scan(&exists); err != nil {
			return false, domain.WrapError(domain.ErrorCodeLedgerError, "check attempt exists", err)
		}
		if !exists {
			return false, domain.ErrAttemptNotFound.WithDetail("attempt_id", attemptID)
		}
		return false, nil
	}
	return true, nil
}

// SetGatewayReference records the gateway transaction id, first writer wins
func (l *PostgresLedger) SetGatewayReference(ctx context.Context, attemptID, gatewayTxnID string) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE payment_attempts
		SET gateway_transaction_id = $1, updated_at = $2
		WHERE attempt_id = $3 AND gateway_transaction_id = ''`,
		gatewayTxnID, time.Now().UTC(), attemptID,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "set gateway reference", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := l.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM payment_attempts WHERE attempt_id = $1)`,
			attemptID).Scan(&exists); err != nil {
			return domain.WrapError(domain.ErrorCodeLedgerError, "check attempt exists", err)
		}
		if !exists {
			return domain.ErrAttemptNotFound.WithDetail("attempt_id", attemptID)
		}
	}
	return nil
}

// RecordCapture inserts the capture record; the primary key on attempt_id
// enforces at-most-once capture per attempt at the database level.
func (l *PostgresLedger) RecordCapture(ctx context.Context, attemptID string, capture *domain.CaptureRecord) error {
	capturedAt := capture.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	_, err := l.pool.Exec(ctx, `
		INSERT INTO capture_records
			(attempt_id, invoice_id, transaction_id, previous_status, current_status, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		attemptID, capture.InvoiceID, capture.TransactionID,
		capture.PreviousStatus, capture.CurrentStatus, capturedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "insert capture record", err)
	}
	return nil
}

// GetCapture returns the capture record for an attempt, or nil if none
func (l *PostgresLedger) GetCapture(ctx context.Context, attemptID string) (*domain.CaptureRecord, error) {
	var rec domain.CaptureRecord
	err := l.pool.QueryRow(ctx, `
		SELECT invoice_id, transaction_id, previous_status, current_status, captured_at
		FROM capture_records
		WHERE attempt_id = $1`, attemptID).
		Scan(&rec.InvoiceID, &rec.TransactionID, &rec.PreviousStatus, &rec.CurrentStatus, &rec.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeLedgerError, "get capture record", err)
	}
	return &rec, nil
}

// RecordVerification appends a verification outcome for an invoice
func (l *PostgresLedger) RecordVerification(ctx context.Context, invoiceID string, out *domain.VerificationOutcome) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO verification_outcomes
			(invoice_id, status, is_paid, date_paid, attempts_used, timed_out, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		invoiceID, out.Status, out.IsPaid, out.DatePaid, out.AttemptsUsed, out.TimedOut,
		time.Now().UTC(),
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "insert verification outcome", err)
	}
	return nil
}

func scanAttempt(row pgx.Row) (*domain.PaymentAttempt, error) {
	var (
		attempt   domain.PaymentAttempt
		amountStr string
	)
	err := row.Scan(
		&attempt.AttemptID, &attempt.OrderID, &attempt.InvoiceID, &attempt.Method,
		&attempt.State, &attempt.GatewayTransactionID,
		&amountStr, &attempt.Currency, &attempt.CreatedAt, &attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse stored amount: %w", err)
	}
	attempt.Amount = amount
	return &attempt, nil
}
