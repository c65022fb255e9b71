package ports

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/billingops/payment-orchestrator/internal/domain"
)

// InitializeRequest asks a gateway to open a payment session
type InitializeRequest struct {
	AttemptID  string
	InvoiceID  string
	Amount     decimal.Decimal
	Currency   string
	ReturnURL  string
	CancelURL  string
	PendingURL string
}

// InitializeResponse is the gateway's answer: either a redirect target for
// browser-based methods, or static instructions for out-of-band methods
// such as bank transfer. GatewayRef is the gateway's own session reference.
type InitializeResponse struct {
	RedirectURL  string
	Instructions string
	GatewayRef   string
}

// GatewayAdapter is the per-provider strategy that translates between the
// orchestrator's generic payment model and one gateway's wire protocol.
//
// ParseCallback MUST verify payload authenticity before trusting it. An
// unverifiable callback is reported as Outcome=Failed with
// domain.ReasonAuthenticationFailed, never as success, and never as an error
// that would hide the event from the reconciler's security logging.
type GatewayAdapter interface {
	// Name returns the method name this adapter serves (e.g. "comgate")
	Name() string

	Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error)

	// ParseReturn normalizes the query parameters of a browser redirect back
	ParseReturn(query url.Values) (*domain.GatewayResult, error)

	// ParseCallback normalizes and authenticates an async server-to-server notification
	ParseCallback(body []byte, headers http.Header) (*domain.GatewayResult, error)
}

// OutOfBandAdapter is implemented by adapters whose Initialize opens no live
// gateway session (instruction-based methods). An initialized attempt for
// such a method can be abandoned for a method switch without orphaning
// gateway-side state.
type OutOfBandAdapter interface {
	OutOfBand() bool
}
