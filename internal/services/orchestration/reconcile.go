package orchestration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
	"github.com/billingops/payment-orchestrator/pkg/observability"
)

// ReconciliationOutcome classifies what a return/callback delivery did
type ReconciliationOutcome string

const (
	// OutcomeCaptured - the gateway confirmed success and the billing system recorded it
	OutcomeCaptured ReconciliationOutcome = "captured"
	// OutcomeDuplicate - a second success confirmation arrived; acknowledged without a billing call
	OutcomeDuplicate ReconciliationOutcome = "duplicate"
	// OutcomeCancelled - the user abandoned the gateway flow
	OutcomeCancelled ReconciliationOutcome = "cancelled"
	// OutcomeFailed - the gateway declined or errored
	OutcomeFailed ReconciliationOutcome = "failed"
	// OutcomePending - the gateway has not decided yet; nothing recorded
	OutcomePending ReconciliationOutcome = "pending"
	// OutcomeRejected - the delivery could not be authenticated; ignored
	OutcomeRejected ReconciliationOutcome = "rejected"
	// OutcomeCaptureFailed - gateway succeeded but the billing system refused the capture
	OutcomeCaptureFailed ReconciliationOutcome = "capture_failed"
)

// ReconciliationResult is the user/operator-facing outcome of one delivery
type ReconciliationResult struct {
	Outcome   ReconciliationOutcome
	InvoiceID string
	AttemptID string
	Capture   *domain.CaptureRecord
	Message   string
}

// HandleReturn processes the synchronous browser redirect back from a
// gateway. The handler only normalizes the wire shape; all state decisions
// happen in reconcile against the ledger.
func (s *Service) HandleReturn(ctx context.Context, method string, query url.Values) (*ReconciliationResult, error) {
	adapter, err := s.adapterFor(method)
	if err != nil {
		return nil, err
	}

	result, err := adapter.ParseReturn(query)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, method, result)
}

// HandleCallback processes an asynchronous server-to-server notification.
// It may arrive before, after, or instead of the browser return; both paths
// converge on the same ledger-serialized reconcile.
func (s *Service) HandleCallback(ctx context.Context, method string, body []byte, headers http.Header) (*ReconciliationResult, error) {
	adapter, err := s.adapterFor(method)
	if err != nil {
		return nil, err
	}

	result, err := adapter.ParseCallback(body, headers)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, method, result)
}

// reconcile aligns one gateway confirmation with the ledger and, for the
// first success confirmation only, issues the capture instruction to the
// billing system. The Initialized -> AwaitingCapture CAS is the at-most-once
// barrier: whichever of return/callback wins it triggers capture, the loser
// is acknowledged as a duplicate.
func (s *Service) reconcile(ctx context.Context, method string, result *domain.GatewayResult) (*ReconciliationResult, error) {
	if !result.Authenticated() {
		// Forged or unverifiable callback. Touch nothing: the payload's
		// contents are untrusted, including its claim about which invoice
		// it belongs to.
		s.logger.Warn("Unauthenticated gateway confirmation rejected",
			zap.String("method", method),
			zap.String("claimed_invoice_id", result.InvoiceID),
			zap.String("received_via", string(result.ReceivedVia)),
		)
		observability.RecordCallbackAuthFailure(method)
		return &ReconciliationResult{
			Outcome:   OutcomeRejected,
			InvoiceID: result.InvoiceID,
			Message:   "confirmation could not be authenticated",
		}, nil
	}

	attempt, err := s.resolveAttempt(ctx, result)
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case domain.GatewayOutcomeCancelled:
		return s.closeAttempt(ctx, method, attempt, result, domain.AttemptStateCancelled, OutcomeCancelled)

	case domain.GatewayOutcomeFailed:
		return s.closeAttempt(ctx, method, attempt, result, domain.AttemptStateFailed, OutcomeFailed)

	case domain.GatewayOutcomePending:
		observability.RecordReconciliation(method, string(result.ReceivedVia), string(OutcomePending))
		return &ReconciliationResult{
			Outcome:   OutcomePending,
			InvoiceID: attempt.InvoiceID,
			AttemptID: attempt.AttemptID,
			Message:   "awaiting gateway confirmation",
		}, nil

	case domain.GatewayOutcomeSuccess:
		return s.capture(ctx, method, attempt, result)

	default:
		return nil, domain.ErrMalformedPayload.WithDetail("outcome", string(result.Outcome))
	}
}

// capture performs the success path: CAS to AwaitingCapture, one billing
// call, then CAS to the final state. A lost first CAS means another delivery
// already handled (or is handling) this attempt.
func (s *Service) capture(ctx context.Context, method string, attempt *domain.PaymentAttempt, result *domain.GatewayResult) (*ReconciliationResult, error) {
	ok, err := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateInitialized, domain.AttemptStateAwaitingCapture)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info("Duplicate success confirmation acknowledged",
			zap.String("invoice_id", attempt.InvoiceID),
			zap.String("attempt_id", attempt.AttemptID),
			zap.String("received_via", string(result.ReceivedVia)),
		)
		observability.RecordDuplicateConfirmation(method)
		capture, _ := s.ledger.GetCapture(ctx, attempt.AttemptID)
		return &ReconciliationResult{
			Outcome:   OutcomeDuplicate,
			InvoiceID: attempt.InvoiceID,
			AttemptID: attempt.AttemptID,
			Capture:   capture,
			Message:   "confirmation already processed",
		}, nil
	}

	if result.GatewayTransactionID != "" {
		if err := s.ledger.SetGatewayReference(ctx, attempt.AttemptID, result.GatewayTransactionID); err != nil {
			s.logger.Warn("Failed to record gateway reference", zap.Error(err))
		}
	}

	transactionID := result.GatewayTransactionID
	if transactionID == "" {
		transactionID = attempt.GatewayTransactionID
	}

	resp, err := s.billing.CapturePayment(ctx, &ports.CaptureRequest{
		InvoiceID:     attempt.InvoiceID,
		Amount:        attempt.Amount,
		Currency:      attempt.Currency,
		Module:        method,
		TransactionID: transactionID,
		Note:          fmt.Sprintf("confirmed via %s", result.ReceivedVia),
	})
	if err != nil {
		// Money moved at the gateway but the billing system did not record
		// it. This is the operator-critical dead end: no automatic retry,
		// because capture is not assumed safe to repeat.
		if _, terr := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateAwaitingCapture, domain.AttemptStateCaptureFailed); terr != nil {
			s.logger.Error("Failed to mark capture failure", zap.Error(terr))
		}
		s.logger.Error("Capture rejected by billing system",
			zap.String("invoice_id", attempt.InvoiceID),
			zap.String("attempt_id", attempt.AttemptID),
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		observability.RecordReconciliation(method, string(result.ReceivedVia), string(OutcomeCaptureFailed))
		return &ReconciliationResult{
			Outcome:   OutcomeCaptureFailed,
			InvoiceID: attempt.InvoiceID,
			AttemptID: attempt.AttemptID,
			Message:   "gateway confirmed payment but billing capture failed; manual reconciliation required",
		}, domain.WrapError(domain.ErrorCodeCaptureFailed, "capture failed after gateway success", err)
	}

	capture := &domain.CaptureRecord{
		InvoiceID:      attempt.InvoiceID,
		TransactionID:  transactionID,
		PreviousStatus: resp.PreviousStatus,
		CurrentStatus:  resp.CurrentStatus,
		CapturedAt:     time.Now().UTC(),
	}
	if err := s.ledger.RecordCapture(ctx, attempt.AttemptID, capture); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateAwaitingCapture, domain.AttemptStateCaptured); err != nil {
		return nil, err
	}

	s.logger.Info("Payment captured",
		zap.String("invoice_id", attempt.InvoiceID),
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("transaction_id", transactionID),
		zap.String("previous_status", resp.PreviousStatus),
		zap.String("current_status", resp.CurrentStatus),
	)
	observability.RecordReconciliation(method, string(result.ReceivedVia), string(OutcomeCaptured))

	return &ReconciliationResult{
		Outcome:   OutcomeCaptured,
		InvoiceID: attempt.InvoiceID,
		AttemptID: attempt.AttemptID,
		Capture:   capture,
		Message:   "payment captured",
	}, nil
}

// closeAttempt handles the cancelled/failed legs: one CAS out of
// Initialized, no billing system call at all.
func (s *Service) closeAttempt(ctx context.Context, method string, attempt *domain.PaymentAttempt, result *domain.GatewayResult, to domain.AttemptState, outcome ReconciliationOutcome) (*ReconciliationResult, error) {
	ok, err := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateInitialized, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		observability.RecordDuplicateConfirmation(method)
		return &ReconciliationResult{
			Outcome:   OutcomeDuplicate,
			InvoiceID: attempt.InvoiceID,
			AttemptID: attempt.AttemptID,
			Message:   "confirmation already processed",
		}, nil
	}

	s.logger.Info("Payment not completed",
		zap.String("invoice_id", attempt.InvoiceID),
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("state", string(to)),
		zap.String("received_via", string(result.ReceivedVia)),
	)
	observability.RecordReconciliation(method, string(result.ReceivedVia), string(outcome))

	return &ReconciliationResult{
		Outcome:   outcome,
		InvoiceID: attempt.InvoiceID,
		AttemptID: attempt.AttemptID,
		Message:   "payment not completed",
	}, nil
}

// resolveAttempt finds the ledger attempt a gateway result refers to,
// preferring the attempt id when the gateway preserved it.
func (s *Service) resolveAttempt(ctx context.Context, result *domain.GatewayResult) (*domain.PaymentAttempt, error) {
	if result.AttemptID != "" {
		return s.ledger.GetByAttemptID(ctx, result.AttemptID)
	}
	if result.InvoiceID != "" {
		return s.ledger.Get(ctx, result.InvoiceID)
	}
	return nil, domain.ErrMalformedPayload.WithDetail("missing", "attempt_id/invoice_id")
}
