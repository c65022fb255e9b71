package ports

import (
	"context"

	"github.com/billingops/payment-orchestrator/internal/domain"
)

// Ledger is the single source of truth for payment attempt lifecycle state
// and the idempotency barrier for capture. All mutating operations are safe
// under concurrent invocation for the same key; unrelated invoices never
// contend.
//
// Transition has compare-and-swap semantics: it succeeds only when the
// attempt's current state equals from AND the state machine permits
// from -> to. A false return with nil error is the expected signal for
// duplicate deliveries and concurrent initializers, not a failure.
type Ledger interface {
	// Put stores a new payment attempt for its invoice. Fails with
	// domain.ErrAttemptInFlight when the invoice already has an attempt in
	// Initialized or AwaitingCapture state.
	Put(ctx context.Context, attempt *domain.PaymentAttempt) error

	// Get returns the most recent attempt for the invoice, or
	// domain.ErrAttemptNotFound.
	Get(ctx context.Context, invoiceID string) (*domain.PaymentAttempt, error)

	// GetByAttemptID returns the attempt with the given id, or
	// domain.ErrAttemptNotFound.
	GetByAttemptID(ctx context.Context, attemptID string) (*domain.PaymentAttempt, error)

	// Transition atomically moves an attempt from one state to another.
	Transition(ctx context.Context, attemptID string, from, to domain.AttemptState) (bool, error)

	// SetGatewayReference records the gateway's transaction id on an attempt.
	// Written once when the gateway responds; later writes are ignored.
	SetGatewayReference(ctx context.Context, attemptID, gatewayTxnID string) error

	// RecordCapture appends the immutable capture record for an attempt.
	// At most one capture record is ever accepted per attempt.
	RecordCapture(ctx context.Context, attemptID string, rec *domain.CaptureRecord) error

	// GetCapture returns the capture record for an attempt, or nil if none
	GetCapture(ctx context.Context, attemptID string) (*domain.CaptureRecord, error)

	// RecordVerification appends a verification outcome for an invoice.
	// Outcomes are never overwritten; re-verification appends a new record.
	RecordVerification(ctx context.Context, invoiceID string, out *domain.VerificationOutcome) error
}
