package orchestration

import (
	"context"

	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/pkg/observability"
	"github.com/billingops/payment-orchestrator/pkg/resilience"
)

// VerifyInvoice polls the billing system until the invoice reports paid or
// the policy's attempts run out. Exhaustion is not failure: TimedOut=true
// with the last known status means "unknown, check later" - the invoice may
// still settle asynchronously, and the caller decides whether to poll again.
//
// Cancellation stops further billing calls promptly and returns the best
// outcome known so far, marked timed out.
func (s *Service) VerifyInvoice(ctx context.Context, invoiceID string, policy resilience.PollingPolicy) (*domain.VerificationOutcome, error) {
	if !policy.Valid() {
		policy = s.defaultPolicy
	}

	outcome := &domain.VerificationOutcome{InvoiceID: invoiceID}

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		status, err := s.billing.GetInvoiceStatus(ctx, invoiceID)
		outcome.AttemptsUsed = attempt + 1

		switch {
		case err == nil:
			outcome.Status = status.Status
			outcome.IsPaid = status.IsPaid
			outcome.DatePaid = status.DatePaid
			if status.IsPaid {
				return s.finishVerification(ctx, invoiceID, outcome)
			}

		case domain.IsDomainError(err, domain.ErrorCodeInvoiceNotFound):
			return nil, err

		default:
			// Transient upstream trouble consumes an attempt like an unpaid
			// answer does; the bounded loop is the retry budget.
			s.logger.Warn("Invoice status poll failed",
				zap.String("invoice_id", invoiceID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}
		if err := policy.Sleep(ctx, attempt); err != nil {
			outcome.TimedOut = true
			return s.finishVerification(ctx, invoiceID, outcome)
		}
	}

	outcome.TimedOut = true
	return s.finishVerification(ctx, invoiceID, outcome)
}

// finishVerification records the outcome and settles the attempt state for
// captured attempts. Both ledger writes are best-effort relative to the
// returned outcome: the poll result is reported even if recording trips on
// an unknown invoice (manual verification of arbitrary ids is allowed).
func (s *Service) finishVerification(ctx context.Context, invoiceID string, outcome *domain.VerificationOutcome) (*domain.VerificationOutcome, error) {
	if err := s.ledger.RecordVerification(ctx, invoiceID, outcome); err != nil {
		if !domain.IsDomainError(err, domain.ErrorCodeAttemptNotFound) {
			return nil, err
		}
	}

	if attempt, err := s.ledger.Get(ctx, invoiceID); err == nil {
		if outcome.IsPaid {
			// Captured attempts settle to Verified. An Initialized attempt
			// settles the same way: instruction-based methods never get a
			// gateway confirmation, the paid invoice is the confirmation.
			ok, err := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateCaptured, domain.AttemptStateVerified)
			if err != nil {
				return nil, err
			}
			if !ok {
				if _, err := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateInitialized, domain.AttemptStateVerified); err != nil {
					return nil, err
				}
			}
		} else {
			// CAS from Captured; a miss just means the attempt never reached
			// capture or was settled by an earlier poll.
			if _, err := s.ledger.Transition(ctx, attempt.AttemptID, domain.AttemptStateCaptured, domain.AttemptStateVerifyTimedOut); err != nil {
				return nil, err
			}
		}
	}

	s.logger.Info("Invoice verification finished",
		zap.String("invoice_id", invoiceID),
		zap.Bool("is_paid", outcome.IsPaid),
		zap.Bool("timed_out", outcome.TimedOut),
		zap.Int("attempts_used", outcome.AttemptsUsed),
	)
	observability.RecordVerification(outcome.IsPaid, outcome.TimedOut)

	return outcome, nil
}
