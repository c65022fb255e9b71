package comgate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// MethodName is the payment method this adapter serves
const MethodName = "comgate"

// SignatureHeader carries the HMAC-SHA256 of the callback body
const SignatureHeader = "X-Comgate-Signature"

// Config holds ComGate merchant credentials
type Config struct {
	BaseURL    string // e.g. https://payments.comgate.cz
	MerchantID string
	Secret     string // Shared secret: create-call auth and callback HMAC
	Test       bool
}

// Adapter implements the gateway port for ComGate's redirect protocol:
// a server-side create call yields a redirect URL, the confirmation comes
// back as a browser return and/or a signed server-to-server callback.
type Adapter struct {
	config     Config
	httpClient ports.HTTPClient
	logger     *zap.Logger
}

// NewAdapter creates a ComGate adapter with dependency injection
func NewAdapter(config Config, httpClient ports.HTTPClient, logger *zap.Logger) *Adapter {
	return &Adapter{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

var _ ports.GatewayAdapter = (*Adapter)(nil)

// Name returns the method name this adapter serves
func (a *Adapter) Name() string {
	return MethodName
}

// Initialize opens a payment session and returns the redirect target.
// ComGate wants the price in cents and echoes refId on every confirmation,
// which is how results correlate back to the invoice.
func (a *Adapter) Initialize(ctx context.Context, req *ports.InitializeRequest) (*ports.InitializeResponse, error) {
	form := url.Values{}
	form.Set("merchant", a.config.MerchantID)
	form.Set("secret", a.config.Secret)
	form.Set("price", req.Amount.Shift(2).Truncate(0).String())
	form.Set("curr", req.Currency)
	form.Set("refId", req.InvoiceID)
	form.Set("label", fmt.Sprintf("Invoice %s", req.InvoiceID))
	form.Set("method", "ALL")
	form.Set("prepareOnly", "true")
	form.Set("url_paid", req.ReturnURL)
	form.Set("url_cancelled", req.CancelURL)
	form.Set("url_pending", req.PendingURL)
	if a.config.Test {
		form.Set("test", "true")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.BaseURL+"/v1.0/create", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "build create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeUpstreamUnavailable, "gateway create failed", err).
			WithDetail("gateway", MethodName)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeUpstreamUnavailable, "read gateway response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, domain.NewDomainError(domain.ErrorCodeUpstreamUnavailable,
			fmt.Sprintf("gateway returned status %d", resp.StatusCode)).
			WithDetail("gateway", MethodName)
	}

	// Create responses are form-encoded: code=0&message=OK&transId=...&redirect=...
	fields, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeMalformedPayload, "parse gateway response", err)
	}
	if code := fields.Get("code"); code != "0" {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError,
			fmt.Sprintf("gateway rejected payment creation: %s", fields.Get("message"))).
			WithDetail("gateway", MethodName).
			WithDetail("code", code)
	}

	transID := fields.Get("transId")
	redirect := fields.Get("redirect")
	if transID == "" || redirect == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeMalformedPayload,
			"gateway response missing transId or redirect")
	}

	a.logger.Info("Gateway payment session opened",
		zap.String("gateway", MethodName),
		zap.String("invoice_id", req.InvoiceID),
		zap.String("trans_id", transID),
	)

	return &ports.InitializeResponse{
		RedirectURL: redirect,
		GatewayRef:  transID,
	}, nil
}

// ParseReturn normalizes the browser redirect back. Return parameters are
// advisory only: the user's browser carried them, so the outcome still has
// to survive the ledger's CAS before any capture happens.
func (a *Adapter) ParseReturn(query url.Values) (*domain.GatewayResult, error) {
	refID := query.Get("refId")
	if refID == "" {
		return nil, domain.ErrMalformedPayload.WithDetail("missing", "refId")
	}

	result := &domain.GatewayResult{
		InvoiceID:            refID,
		GatewayTransactionID: query.Get("transId"),
		ReceivedVia:          domain.DeliveryChannelReturn,
		Outcome:              outcomeFromStatus(query.Get("status")),
	}
	return result, nil
}

// ParseCallback authenticates and normalizes a server-to-server callback.
// An unverifiable payload is reported as Failed with the authentication
// reason so the reconciler can log it as a security event; it is never an
// error and never a success.
func (a *Adapter) ParseCallback(body []byte, headers http.Header) (*domain.GatewayResult, error) {
	fields, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeMalformedPayload, "parse callback body", err)
	}
	refID := fields.Get("refId")

	if !ValidateSignature(a.config.Secret, body, headers.Get(SignatureHeader)) {
		a.logger.Warn("Callback signature verification failed",
			zap.String("gateway", MethodName),
			zap.String("ref_id", refID),
		)
		return &domain.GatewayResult{
			InvoiceID:     refID,
			Outcome:       domain.GatewayOutcomeFailed,
			FailureReason: domain.ReasonAuthenticationFailed,
			ReceivedVia:   domain.DeliveryChannelCallback,
		}, nil
	}

	if refID == "" {
		return nil, domain.ErrMalformedPayload.WithDetail("missing", "refId")
	}

	result := &domain.GatewayResult{
		InvoiceID:            refID,
		GatewayTransactionID: fields.Get("transId"),
		RawCurrency:          fields.Get("curr"),
		ReceivedVia:          domain.DeliveryChannelCallback,
		Outcome:              outcomeFromStatus(fields.Get("status")),
	}
	if price := fields.Get("price"); price != "" {
		cents, err := decimal.NewFromString(price)
		if err == nil {
			result.RawAmount = cents.Shift(-2)
		}
	}
	return result, nil
}

// outcomeFromStatus maps ComGate status strings to the generic outcome.
// Unknown statuses are failures, never successes.
func outcomeFromStatus(status string) domain.GatewayOutcome {
	switch strings.ToUpper(status) {
	case "PAID", "SUCCESS":
		return domain.GatewayOutcomeSuccess
	case "CANCELLED", "CANCELED":
		return domain.GatewayOutcomeCancelled
	case "PENDING", "AUTHORIZED":
		return domain.GatewayOutcomePending
	default:
		return domain.GatewayOutcomeFailed
	}
}
