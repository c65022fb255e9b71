package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// invoiceRecord holds everything the ledger tracks for one invoice:
// the attempt history (newest last), capture records keyed by attempt,
// and appended verification outcomes.
type invoiceRecord struct {
	mu            sync.Mutex
	attempts      []*domain.PaymentAttempt
	captures      map[string]*domain.CaptureRecord
	verifications []*domain.VerificationOutcome
}

// latest returns the newest attempt, caller must hold rec.mu
func (r *invoiceRecord) latest() *domain.PaymentAttempt {
	if len(r.attempts) == 0 {
		return nil
	}
	return r.attempts[len(r.attempts)-1]
}

// MemoryLedger is the in-process reconciliation ledger. Each invoice gets
// its own lock so concurrent return/callback deliveries for the same
// attempt serialize while unrelated invoices never contend.
type MemoryLedger struct {
	mu        sync.RWMutex
	byInvoice map[string]*invoiceRecord
	byAttempt map[string]*invoiceRecord
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byInvoice: make(map[string]*invoiceRecord),
		byAttempt: make(map[string]*invoiceRecord),
	}
}

var _ ports.Ledger = (*MemoryLedger)(nil)

// Put stores a new payment attempt. It fails with domain.ErrAttemptInFlight
// when the invoice's newest attempt is still Initialized or AwaitingCapture,
// which is what prevents two simultaneous gateway sessions per invoice.
func (l *MemoryLedger) Put(ctx context.Context, attempt *domain.PaymentAttempt) error {
	if attempt.AttemptID == "" || attempt.InvoiceID == "" {
		return domain.ErrValidationMissingField.WithDetail("field", "attempt_id/invoice_id")
	}

	l.mu.Lock()
	rec, ok := l.byInvoice[attempt.InvoiceID]
	if !ok {
		rec = &invoiceRecord{captures: make(map[string]*domain.CaptureRecord)}
		l.byInvoice[attempt.InvoiceID] = rec
	}
	if _, dup := l.byAttempt[attempt.AttemptID]; dup {
		l.mu.Unlock()
		return domain.NewDomainError(domain.ErrorCodeLedgerError, "attempt id already exists").
			WithDetail("attempt_id", attempt.AttemptID)
	}
	l.byAttempt[attempt.AttemptID] = rec
	l.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if latest := rec.latest(); latest != nil && latest.State.IsInFlight() {
		// Undo the attempt index entry; the attempt was never admitted.
		l.mu.Lock()
		delete(l.byAttempt, attempt.AttemptID)
		l.mu.Unlock()
		return domain.ErrAttemptInFlight.WithDetail("invoice_id", attempt.InvoiceID)
	}

	stored := *attempt
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	rec.attempts = append(rec.attempts, &stored)
	return nil
}

// Get returns a copy of the most recent attempt for the invoice
func (l *MemoryLedger) Get(ctx context.Context, invoiceID string) (*domain.PaymentAttempt, error) {
	l.mu.RLock()
	rec, ok := l.byInvoice[invoiceID]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAttemptNotFound.WithDetail("invoice_id", invoiceID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	latest := rec.latest()
	if latest == nil {
		return nil, domain.ErrAttemptNotFound.WithDetail("invoice_id", invoiceID)
	}
	cp := *latest
	return &cp, nil
}

// GetByAttemptID returns a copy of the attempt with the given id
func (l *MemoryLedger) GetByAttemptID(ctx context.Context, attemptID string) (*domain.PaymentAttempt, error) {
	rec, attempt := l.find(attemptID)
	if attempt == nil {
		return nil, domain.ErrAttemptNotFound.WithDetail("attempt_id", attemptID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := *attempt
	return &cp, nil
}

// Transition atomically moves an attempt from one state to another.
// Returns false (nil error) when the current state does not match from or
// the state machine forbids the move. Transitions out of a terminal state
// are idempotent rejections, never errors.
func (l *MemoryLedger) Transition(ctx context.Context, attemptID string, from, to domain.AttemptState) (bool, error) {
	if !from.IsValid() || !to.IsValid() {
		return false, domain.ErrValidationFailed.WithDetail("state", string(from)+"->"+string(to))
	}

	rec, attempt := l.find(attemptID)
	if attempt == nil {
		return false, domain.ErrAttemptNotFound.WithDetail("attempt_id", attemptID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if attempt.State != from || !domain.CanTransition(from, to) {
		return false, nil
	}
	attempt.State = to
	attempt.UpdatedAt = time.Now().UTC()
	return true, nil
}

// SetGatewayReference records the gateway transaction id, first writer wins
func (l *MemoryLedger) SetGatewayReference(ctx context.Context, attemptID, gatewayTxnID string) error {
	rec, attempt := l.find(attemptID)
	if attempt == nil {
		return domain.ErrAttemptNotFound.WithDetail("attempt_id", attemptID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if attempt.GatewayTransactionID == "" {
		attempt.GatewayTransactionID = gatewayTxnID
		attempt.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// RecordCapture appends the capture record for an attempt. A second capture
// record for the same attempt is rejected: capture is at-most-once.
func (l *MemoryLedger) RecordCapture(ctx context.Context, attemptID string, capture *domain.CaptureRecord) error {
	rec, attempt := l.find(attemptID)
	if attempt == nil {
		return domain.ErrAttemptNotFound.WithDetail("attempt_id", attemptID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if _, exists := rec.captures[attemptID]; exists {
		return domain.NewDomainError(domain.ErrorCodeLedgerError, "capture record already exists").
			WithDetail("attempt_id", attemptID)
	}
	cp := *capture
	if cp.CapturedAt.IsZero() {
		cp.CapturedAt = time.Now().UTC()
	}
	rec.captures[attemptID] = &cp
	return nil
}

// GetCapture returns a copy of the capture record, or nil when none exists
func (l *MemoryLedger) GetCapture(ctx context.Context, attemptID string) (*domain.CaptureRecord, error) {
	rec, attempt := l.find(attemptID)
	if attempt == nil {
		return nil, domain.ErrAttemptNotFound.WithDetail("attempt_id", attemptID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	capture, ok := rec.captures[attemptID]
	if !ok {
		return nil, nil
	}
	cp := *capture
	return &cp, nil
}

// RecordVerification appends a verification outcome for an invoice.
// Earlier outcomes are kept; re-verification adds a new record.
func (l *MemoryLedger) RecordVerification(ctx context.Context, invoiceID string, out *domain.VerificationOutcome) error {
	l.mu.RLock()
	rec, ok := l.byInvoice[invoiceID]
	l.mu.RUnlock()
	if !ok {
		return domain.ErrAttemptNotFound.WithDetail("invoice_id", invoiceID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := *out
	rec.verifications = append(rec.verifications, &cp)
	return nil
}

// Verifications returns copies of all verification outcomes recorded for an
// invoice, oldest first. Used by operator tooling and tests.
func (l *MemoryLedger) Verifications(invoiceID string) []*domain.VerificationOutcome {
	l.mu.RLock()
	rec, ok := l.byInvoice[invoiceID]
	l.mu.RUnlock()
	if !ok {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	outs := make([]*domain.VerificationOutcome, len(rec.verifications))
	for i, v := range rec.verifications {
		cp := *v
		outs[i] = &cp
	}
	return outs
}

func (l *MemoryLedger) find(attemptID string) (*invoiceRecord, *domain.PaymentAttempt) {
	l.mu.RLock()
	rec, ok := l.byAttempt[attemptID]
	l.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	// The attempt slice only grows and entries are stable pointers, so the
	// lookup can happen outside rec.mu; mutation of the attempt itself is
	// always done under rec.mu by callers of find.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, a := range rec.attempts {
		if a.AttemptID == attemptID {
			return rec, a
		}
	}
	return nil, nil
}
