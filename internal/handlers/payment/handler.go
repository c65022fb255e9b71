package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/services/orchestration"
	"github.com/billingops/payment-orchestrator/pkg/resilience"
)

// Handler exposes the orchestration service over HTTP. It only decodes wire
// shapes and maps domain errors to status codes; all payment semantics live
// in the service.
type Handler struct {
	service *orchestration.Service
	logger  *zap.Logger
}

// NewHandler creates the payment HTTP handler
func NewHandler(service *orchestration.Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register wires all routes onto the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/orders", h.StartOrder)
	mux.HandleFunc("POST /api/v1/payments", h.StartPayment)
	mux.HandleFunc("GET /api/v1/payments/return", h.HandleReturn)
	mux.HandleFunc("POST /api/v1/payments/callback/{gateway}", h.HandleCallback)
	mux.HandleFunc("POST /api/v1/invoices/{invoiceID}/verify", h.VerifyInvoice)
}

type orderRequestBody struct {
	Customer    domain.Customer   `json:"customer"`
	LineItems   []domain.LineItem `json:"line_items"`
	AffiliateID string            `json:"affiliate_id"`
	Currency    string            `json:"currency"`
	Method      string            `json:"method"`
}

type orderResponseBody struct {
	OrderID   string `json:"order_id"`
	InvoiceID string `json:"invoice_id"`
	AttemptID string `json:"attempt_id"`
}

// StartOrder creates an order in the billing system and seeds its payment attempt
func (h *Handler) StartOrder(w http.ResponseWriter, r *http.Request) {
	var body orderRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.WrapError(domain.ErrorCodeValidationFailed, "invalid JSON body", err))
		return
	}

	result, err := h.service.StartOrder(r.Context(), &orchestration.OrderRequest{
		Customer:    body.Customer,
		LineItems:   body.LineItems,
		AffiliateID: body.AffiliateID,
		Currency:    body.Currency,
		Method:      body.Method,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, orderResponseBody{
		OrderID:   result.Order.OrderID,
		InvoiceID: result.Order.InvoiceID,
		AttemptID: result.AttemptID,
	})
}

type paymentRequestBody struct {
	InvoiceID string `json:"invoice_id"`
	Method    string `json:"method"`
}

type paymentResponseBody struct {
	AttemptID    string `json:"attempt_id"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	GatewayRef   string `json:"gateway_ref,omitempty"`
}

// StartPayment opens a gateway session for an invoice
func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var body paymentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.WrapError(domain.ErrorCodeValidationFailed, "invalid JSON body", err))
		return
	}
	if body.InvoiceID == "" || body.Method == "" {
		h.writeError(w, domain.ErrValidationMissingField.WithDetail("field", "invoice_id/method"))
		return
	}

	result, err := h.service.StartPayment(r.Context(), body.InvoiceID, body.Method)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, paymentResponseBody{
		AttemptID:    result.AttemptID,
		RedirectURL:  result.RedirectURL,
		Instructions: result.Instructions,
		GatewayRef:   result.GatewayRef,
	})
}

type reconciliationResponseBody struct {
	Outcome   string `json:"outcome"`
	InvoiceID string `json:"invoice_id"`
	AttemptID string `json:"attempt_id,omitempty"`
	Message   string `json:"message"`
}

// HandleReturn processes the browser redirect back from a gateway.
// The gateway name travels in the query because the orchestrator put it
// there when it built the return URL.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	gateway := query.Get("gateway")
	if gateway == "" {
		h.writeError(w, domain.ErrValidationMissingField.WithDetail("field", "gateway"))
		return
	}

	result, err := h.service.HandleReturn(r.Context(), gateway, query)
	if err != nil && result == nil {
		h.writeError(w, err)
		return
	}
	h.writeReconciliation(w, result, err)
}

// HandleCallback processes an async server-to-server gateway notification.
// Non-2xx answers make gateways redeliver, so everything the ledger already
// settled (duplicates included) acknowledges with 200; only an
// unauthenticated payload is refused.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	gateway := r.PathValue("gateway")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.writeError(w, domain.WrapError(domain.ErrorCodeValidationFailed, "read callback body", err))
		return
	}

	result, svcErr := h.service.HandleCallback(r.Context(), gateway, body, r.Header)
	if svcErr != nil && result == nil {
		h.writeError(w, svcErr)
		return
	}
	h.writeReconciliation(w, result, svcErr)
}

type verifyRequestBody struct {
	MaxAttempts       int     `json:"max_attempts"`
	InitialDelayMS    int     `json:"initial_delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	MaxDelayMS        int     `json:"max_delay_ms"`
}

// VerifyInvoice polls the billing system for a paid invoice. The body is
// optional; an empty or absent body selects the configured default policy.
func (h *Handler) VerifyInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID := r.PathValue("invoiceID")

	var policy resilience.PollingPolicy
	var body verifyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		policy = resilience.PollingPolicy{
			MaxAttempts:       body.MaxAttempts,
			InitialDelay:      time.Duration(body.InitialDelayMS) * time.Millisecond,
			BackoffMultiplier: body.BackoffMultiplier,
			MaxDelay:          time.Duration(body.MaxDelayMS) * time.Millisecond,
		}
	}

	outcome, err := h.service.VerifyInvoice(r.Context(), invoiceID, policy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// writeReconciliation maps reconciliation outcomes to status codes.
// A capture failure after gateway success still reports the result body:
// the operator needs the detail, not a bare 502.
func (h *Handler) writeReconciliation(w http.ResponseWriter, result *orchestration.ReconciliationResult, err error) {
	status := http.StatusOK
	switch {
	case result.Outcome == orchestration.OutcomeRejected:
		status = http.StatusUnauthorized
	case result.Outcome == orchestration.OutcomeCaptureFailed:
		status = http.StatusBadGateway
	}
	if err != nil && status == http.StatusOK {
		status = statusForError(err)
	}

	h.writeJSON(w, status, reconciliationResponseBody{
		Outcome:   string(result.Outcome),
		InvoiceID: result.InvoiceID,
		AttemptID: result.AttemptID,
		Message:   result.Message,
	})
}

type errorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	code := string(domain.GetErrorCode(err))
	if code == "" {
		code = string(domain.ErrorCodeInternalError)
	}

	var domainErr *domain.DomainError
	message := "internal error"
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	if status >= 500 {
		h.logger.Error("Request failed", zap.String("code", code), zap.Error(err))
	} else {
		h.logger.Warn("Request rejected", zap.String("code", code), zap.Error(err))
	}

	h.writeJSON(w, status, errorResponseBody{Code: code, Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func statusForError(err error) int {
	switch domain.GetErrorCode(err) {
	case domain.ErrorCodeValidationFailed, domain.ErrorCodeValidationAmountInvalid,
		domain.ErrorCodeValidationCurrency, domain.ErrorCodeValidationMissingField,
		domain.ErrorCodeUnsupportedMethod, domain.ErrorCodeMalformedPayload:
		return http.StatusBadRequest
	case domain.ErrorCodeAttemptNotFound, domain.ErrorCodeInvoiceNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeAttemptInFlight, domain.ErrorCodeConcurrentConflict,
		domain.ErrorCodeAlreadyCaptured, domain.ErrorCodeAttemptInvalidState:
		return http.StatusConflict
	case domain.ErrorCodeCallbackAuthFailed:
		return http.StatusUnauthorized
	case domain.ErrorCodeUpstreamUnavailable, domain.ErrorCodeGatewayError,
		domain.ErrorCodeCaptureFailed, domain.ErrorCodeOrderCreationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
