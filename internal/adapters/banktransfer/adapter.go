package banktransfer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// MethodName is the payment method this adapter serves
const MethodName = "banktransfer"

// Config holds the beneficiary account details rendered into instructions
type Config struct {
	AccountName   string
	AccountNumber string
	BankCode      string
	IBAN          string
	SwiftBIC      string
}

// Adapter serves the non-redirect bank transfer method. There is no gateway
// session to open: Initialize returns static payment instructions with the
// invoice id as the variable symbol, and confirmation only ever arrives via
// the verifier polling the billing system after manual matching.
type Adapter struct {
	config Config
	logger *zap.Logger
}

// NewAdapter creates a bank transfer adapter
func NewAdapter(config Config, logger *zap.Logger) *Adapter {
	return &Adapter{config: config, logger: logger}
}

var _ ports.GatewayAdapter = (*Adapter)(nil)

// Name returns the method name this adapter serves
func (a *Adapter) Name() string {
	return MethodName
}

// OutOfBand reports that no gateway session exists for this method, so an
// initialized attempt can be abandoned for a method switch.
func (a *Adapter) OutOfBand() bool {
	return true
}

// Initialize returns wire instructions; no redirect URL exists for this method
func (a *Adapter) Initialize(ctx context.Context, req *ports.InitializeRequest) (*ports.InitializeResponse, error) {
	instructions := fmt.Sprintf(
		"Transfer %s %s to account %s (%s), bank code %s, IBAN %s, BIC %s. Use %s as the payment reference.",
		req.Amount.StringFixed(2), req.Currency,
		a.config.AccountNumber, a.config.AccountName,
		a.config.BankCode, a.config.IBAN, a.config.SwiftBIC,
		req.InvoiceID,
	)

	a.logger.Info("Bank transfer instructions issued",
		zap.String("invoice_id", req.InvoiceID),
	)

	return &ports.InitializeResponse{
		Instructions: instructions,
		GatewayRef:   "bt-" + req.InvoiceID,
	}, nil
}

// ParseReturn is not part of the bank transfer flow
func (a *Adapter) ParseReturn(query url.Values) (*domain.GatewayResult, error) {
	return nil, domain.ErrMalformedPayload.
		WithDetail("gateway", MethodName).
		WithDetail("reason", "bank transfer has no return flow")
}

// ParseCallback is not part of the bank transfer flow
func (a *Adapter) ParseCallback(body []byte, headers http.Header) (*domain.GatewayResult, error) {
	return nil, domain.ErrMalformedPayload.
		WithDetail("gateway", MethodName).
		WithDetail("reason", "bank transfer has no callback flow")
}
