package orchestration

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// PaymentInitResult reports the opened gateway session. RedirectURL is set
// for browser-based methods; Instructions for out-of-band methods such as
// bank transfer.
type PaymentInitResult struct {
	AttemptID    string
	RedirectURL  string
	Instructions string
	GatewayRef   string
}

// StartPayment opens a gateway session for the invoice's pending attempt.
//
// The Created -> Initialized move is a ledger CAS, so two concurrent
// initializers resolve to exactly one success; the loser gets
// ErrConcurrentConflict instead of silently overwriting. An attempt already
// in flight or already captured is refused outright.
func (s *Service) StartPayment(ctx context.Context, invoiceID, method string) (*PaymentInitResult, error) {
	adapter, err := s.adapterFor(method)
	if err != nil {
		return nil, err
	}

	attempt, err := s.ensureAttempt(ctx, invoiceID, method)
	if err != nil {
		return nil, err
	}

	resp, err := adapter.Initialize(ctx, &ports.InitializeRequest{
		AttemptID:  attempt.AttemptID,
		InvoiceID:  invoiceID,
		Amount:     attempt.Amount,
		Currency:   attempt.Currency,
		ReturnURL:  s.callbackURL(s.urls.ReturnURL, method, invoiceID, "success"),
		CancelURL:  s.callbackURL(s.urls.CancelURL, method, invoiceID, "cancelled"),
		PendingURL: s.callbackURL(s.urls.PendingURL, method, invoiceID, "pending"),
	})
	if err != nil {
		return nil, err
	}

	ok, err := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateCreated, domain.AttemptStateInitialized)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent initializer won the CAS; its gateway session is the
		// live one and this one is abandoned unused.
		return nil, domain.ErrConcurrentConflict.
			WithDetail("invoice_id", invoiceID).
			WithDetail("attempt_id", attempt.AttemptID)
	}

	if resp.GatewayRef != "" {
		if err := s.ledger.SetGatewayReference(ctx, attempt.AttemptID, resp.GatewayRef); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Payment initialized",
		zap.String("invoice_id", invoiceID),
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("method", method),
		zap.Bool("redirect", resp.RedirectURL != ""),
	)

	return &PaymentInitResult{
		AttemptID:    attempt.AttemptID,
		RedirectURL:  resp.RedirectURL,
		Instructions: resp.Instructions,
		GatewayRef:   resp.GatewayRef,
	}, nil
}

// ensureAttempt resolves the attempt StartPayment should initialize. A
// Created attempt for the same method is reused; after a cancel or failure a
// fresh attempt is seeded (the ledger refuses it if another one is still in
// flight). Captured-and-beyond means the invoice needs no further payment.
//
// One in-flight case is not refused: an Initialized attempt for an
// out-of-band method holds no gateway session, so a switch to another method
// cancels it and seeds a fresh attempt instead of pinning the invoice to the
// first choice forever.
func (s *Service) ensureAttempt(ctx context.Context, invoiceID, method string) (*domain.PaymentAttempt, error) {
	attempt, err := s.ledger.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch {
	case attempt.State == domain.AttemptStateCreated && attempt.Method == method:
		return attempt, nil

	case attempt.State.IsInFlight():
		if attempt.State == domain.AttemptStateInitialized &&
			attempt.Method != method && s.isOutOfBand(attempt.Method) {
			ok, err := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateInitialized, domain.AttemptStateCancelled)
			if err != nil {
				return nil, err
			}
			if ok {
				return s.seedAttempt(ctx, invoiceID, method, attempt)
			}
			// Lost the race to a concurrent settlement; refuse as usual.
		}
		return nil, domain.ErrAttemptInFlight.WithDetail("invoice_id", invoiceID)

	case attempt.State == domain.AttemptStateCreated,
		attempt.State == domain.AttemptStateCancelled,
		attempt.State == domain.AttemptStateFailed:
		// Method switch before initialization, or retry after an abandoned
		// gateway flow: seed a fresh attempt for the same invoice.
		return s.seedAttempt(ctx, invoiceID, method, attempt)

	default:
		return nil, domain.ErrAttemptInvalidState.
			WithDetail("invoice_id", invoiceID).
			WithDetail("state", string(attempt.State))
	}
}

// seedAttempt puts a fresh Created attempt carrying over the order identity
// and amount of the previous one. The ledger still refuses it if another
// attempt is in flight.
func (s *Service) seedAttempt(ctx context.Context, invoiceID, method string, prev *domain.PaymentAttempt) (*domain.PaymentAttempt, error) {
	fresh := &domain.PaymentAttempt{
		AttemptID: uuid.NewString(),
		OrderID:   prev.OrderID,
		InvoiceID: invoiceID,
		Method:    method,
		State:     domain.AttemptStateCreated,
		Amount:    prev.Amount,
		Currency:  prev.Currency,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.Put(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// isOutOfBand reports whether the method's adapter declares itself
// session-less via ports.OutOfBandAdapter.
func (s *Service) isOutOfBand(method string) bool {
	adapter, ok := s.gateways[method]
	if !ok {
		return false
	}
	oob, ok := adapter.(ports.OutOfBandAdapter)
	return ok && oob.OutOfBand()
}

// callbackURL attaches gateway correlation parameters to a configured URL
func (s *Service) callbackURL(base, method, invoiceID, status string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base
	}
	q := u.Query()
	q.Set("gateway", method)
	q.Set("refId", invoiceID)
	q.Set("status", status)
	u.RawQuery = q.Encode()
	return u.String()
}
