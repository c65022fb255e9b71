package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/ledger"
)

func newAttempt(attemptID, invoiceID string, state domain.AttemptState) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		AttemptID: attemptID,
		OrderID:   "order-1",
		InvoiceID: invoiceID,
		Method:    "comgate",
		State:     state,
		Amount:    decimal.NewFromFloat(49.90),
		Currency:  "EUR",
	}
}

func TestMemoryLedger_PutAndGet(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCreated)))

	got, err := l.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AttemptID)
	assert.Equal(t, domain.AttemptStateCreated, got.State)
	assert.False(t, got.CreatedAt.IsZero())

	byID, err := l.GetByAttemptID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", byID.InvoiceID)
}

func TestMemoryLedger_Get_NotFound(t *testing.T) {
	l := ledger.NewMemoryLedger()

	_, err := l.Get(context.Background(), "inv-missing")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAttemptNotFound))

	_, err = l.GetByAttemptID(context.Background(), "a-missing")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAttemptNotFound))
}

func TestMemoryLedger_Put_RejectsSecondInFlightAttempt(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateInitialized)))

	err := l.Put(ctx, newAttempt("a2", "inv-1", domain.AttemptStateCreated))
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAttemptInFlight))

	// The rejected attempt must not be findable
	_, err = l.GetByAttemptID(ctx, "a2")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAttemptNotFound))
}

func TestMemoryLedger_Put_AllowsRetryAfterCancel(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCancelled)))
	require.NoError(t, l.Put(ctx, newAttempt("a2", "inv-1", domain.AttemptStateCreated)))

	latest, err := l.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "a2", latest.AttemptID)

	// The earlier attempt stays addressable by id
	old, err := l.GetByAttemptID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStateCancelled, old.State)
}

func TestMemoryLedger_Put_RejectsDuplicateAttemptID(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCancelled)))
	err := l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCreated))
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeLedgerError))
}

func TestMemoryLedger_Transition_Success(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCreated)))

	ok, err := l.Transition(ctx, "a1", domain.AttemptStateCreated, domain.AttemptStateInitialized)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := l.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStateInitialized, got.State)
}

func TestMemoryLedger_Transition_StateMismatchIsBenign(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCreated)))

	ok, err := l.Transition(ctx, "a1", domain.AttemptStateInitialized, domain.AttemptStateAwaitingCapture)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := l.Get(ctx, "inv-1")
	assert.Equal(t, domain.AttemptStateCreated, got.State, "state must be untouched after a miss")
}

func TestMemoryLedger_Transition_TerminalStateIsNoOp(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCancelled)))

	ok, err := l.Transition(ctx, "a1", domain.AttemptStateCancelled, domain.AttemptStateInitialized)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLedger_Transition_UnknownAttempt(t *testing.T) {
	l := ledger.NewMemoryLedger()

	_, err := l.Transition(context.Background(), "nope",
		domain.AttemptStateCreated, domain.AttemptStateInitialized)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAttemptNotFound))
}

func TestMemoryLedger_Transition_ConcurrentSingleWinner(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateInitialized)))

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Transition(ctx, "a1",
				domain.AttemptStateInitialized, domain.AttemptStateAwaitingCapture)
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for ok := range wins {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one racer may win the CAS")
}

func TestMemoryLedger_SetGatewayReference_FirstWriterWins(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateInitialized)))

	require.NoError(t, l.SetGatewayReference(ctx, "a1", "gw-111"))
	require.NoError(t, l.SetGatewayReference(ctx, "a1", "gw-222"))

	got, err := l.GetByAttemptID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "gw-111", got.GatewayTransactionID)
}

func TestMemoryLedger_RecordCapture_AtMostOnce(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateAwaitingCapture)))

	capture := &domain.CaptureRecord{
		InvoiceID:      "inv-1",
		TransactionID:  "gw-111",
		PreviousStatus: "Unpaid",
		CurrentStatus:  "Paid",
	}
	require.NoError(t, l.RecordCapture(ctx, "a1", capture))

	err := l.RecordCapture(ctx, "a1", capture)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeLedgerError))

	got, err := l.GetCapture(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "gw-111", got.TransactionID)
	assert.False(t, got.CapturedAt.IsZero())
}

func TestMemoryLedger_GetCapture_NoneRecorded(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateInitialized)))

	got, err := l.GetCapture(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryLedger_RecordVerification_Appends(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCaptured)))

	first := &domain.VerificationOutcome{InvoiceID: "inv-1", TimedOut: true, AttemptsUsed: 5}
	require.NoError(t, l.RecordVerification(ctx, "inv-1", first))

	now := time.Now().UTC()
	second := &domain.VerificationOutcome{
		InvoiceID: "inv-1", IsPaid: true, AttemptsUsed: 1, DatePaid: &now,
	}
	require.NoError(t, l.RecordVerification(ctx, "inv-1", second))

	outs := l.Verifications("inv-1")
	require.Len(t, outs, 2)
	assert.True(t, outs[0].TimedOut)
	assert.True(t, outs[1].IsPaid)
}

func TestMemoryLedger_RecordVerification_UnknownInvoice(t *testing.T) {
	l := ledger.NewMemoryLedger()

	err := l.RecordVerification(context.Background(), "inv-missing",
		&domain.VerificationOutcome{InvoiceID: "inv-missing"})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAttemptNotFound))
}

func TestMemoryLedger_GetReturnsCopies(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, newAttempt("a1", "inv-1", domain.AttemptStateCreated)))

	got, err := l.Get(ctx, "inv-1")
	require.NoError(t, err)
	got.State = domain.AttemptStateCaptured

	again, err := l.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStateCreated, again.State,
		"mutating a returned attempt must not touch the ledger")
}
