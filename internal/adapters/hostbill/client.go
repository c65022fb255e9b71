package hostbill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// Config holds billing API connection settings
type Config struct {
	BaseURL string // e.g. https://billing.example.com
	APIID   string // API credential id
	APIKey  string // API credential secret
}

// Client is the typed wrapper around the billing system's REST API.
// Transport failures and 5xx responses map to ErrUpstreamUnavailable so the
// orchestration layer can distinguish transient conditions from rejections.
type Client struct {
	config     Config
	httpClient ports.HTTPClient
	logger     *zap.Logger
}

// NewClient creates a billing client with dependency injection
func NewClient(config Config, httpClient ports.HTTPClient, logger *zap.Logger) *Client {
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

var _ ports.BillingClient = (*Client)(nil)

type orderRequestBody struct {
	Customer    customerBody   `json:"customer"`
	Items       []lineItemBody `json:"items"`
	AffiliateID string         `json:"affiliate_id,omitempty"`
}

type customerBody struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	PostCode  string `json:"post_code,omitempty"`
	Country   string `json:"country,omitempty"`
}

type lineItemBody struct {
	ProductID    string `json:"product_id"`
	UnitPrice    string `json:"unit_price"`
	BillingCycle string `json:"billing_cycle,omitempty"`
	Quantity     int    `json:"quantity"`
}

type orderResponseBody struct {
	OrderID   string `json:"order_id"`
	InvoiceID string `json:"invoice_id"`
}

// CreateOrder opens an order and its invoice in the billing system.
// Not retried here: the billing system does not guarantee idempotent order
// creation, so retry policy belongs to the caller.
func (c *Client) CreateOrder(ctx context.Context, req *ports.CreateOrderRequest) (*ports.CreateOrderResponse, error) {
	body := orderRequestBody{
		Customer: customerBody{
			FirstName: req.Customer.FirstName,
			LastName:  req.Customer.LastName,
			Email:     req.Customer.Email,
			Address:   req.Customer.Address,
			City:      req.Customer.City,
			PostCode:  req.Customer.PostCode,
			Country:   req.Customer.Country,
		},
		AffiliateID: req.AffiliateID,
	}
	for _, item := range req.LineItems {
		body.Items = append(body.Items, lineItemBody{
			ProductID:    item.ProductID,
			UnitPrice:    item.UnitPrice.String(),
			BillingCycle: item.BillingCycle,
			Quantity:     item.Quantity,
		})
	}

	var resp orderResponseBody
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/orders", body, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == "" || resp.InvoiceID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeOrderCreationFailed,
			"billing system returned incomplete order identifiers")
	}

	c.logger.Info("Order created in billing system",
		zap.String("order_id", resp.OrderID),
		zap.String("invoice_id", resp.InvoiceID),
	)

	return &ports.CreateOrderResponse{OrderID: resp.OrderID, InvoiceID: resp.InvoiceID}, nil
}

type captureRequestBody struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Module        string `json:"module"`
	TransactionID string `json:"transaction_id"`
	Note          string `json:"note,omitempty"`
}

type captureResponseBody struct {
	PreviousStatus string `json:"previous_status"`
	CurrentStatus  string `json:"current_status"`
}

// CapturePayment records a gateway-confirmed payment on an invoice.
// Callers enforce at-most-once invocation per attempt; the billing system is
// not assumed idempotent per transaction id.
func (c *Client) CapturePayment(ctx context.Context, req *ports.CaptureRequest) (*ports.CaptureResponse, error) {
	body := captureRequestBody{
		Amount:        req.Amount.String(),
		Currency:      req.Currency,
		Module:        req.Module,
		TransactionID: req.TransactionID,
		Note:          req.Note,
	}

	var resp captureResponseBody
	path := fmt.Sprintf("/api/v1/invoices/%s/capture", req.InvoiceID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("Capture recorded in billing system",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("transaction_id", req.TransactionID),
		zap.String("previous_status", resp.PreviousStatus),
		zap.String("current_status", resp.CurrentStatus),
	)

	return &ports.CaptureResponse{
		PreviousStatus: resp.PreviousStatus,
		CurrentStatus:  resp.CurrentStatus,
	}, nil
}

type invoiceStatusBody struct {
	Status   string  `json:"status"`
	IsPaid   bool    `json:"is_paid"`
	DatePaid *string `json:"date_paid"`
	Amount   string  `json:"amount"`
	Currency string  `json:"currency"`
}

// GetInvoiceStatus returns a point-in-time snapshot of an invoice
func (c *Client) GetInvoiceStatus(ctx context.Context, invoiceID string) (*ports.InvoiceStatus, error) {
	var resp invoiceStatusBody
	path := fmt.Sprintf("/api/v1/invoices/%s", invoiceID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	status := &ports.InvoiceStatus{
		Status:   resp.Status,
		IsPaid:   resp.IsPaid,
		Currency: resp.Currency,
	}
	if resp.Amount != "" {
		amount, err := decimal.NewFromString(resp.Amount)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeUpstreamUnavailable,
				"billing system returned unparseable amount", err)
		}
		status.Amount = amount
	}
	if resp.DatePaid != nil && *resp.DatePaid != "" {
		datePaid, err := time.Parse(time.RFC3339, *resp.DatePaid)
		if err == nil {
			status.DatePaid = &datePaid
		}
	}
	return status, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// doJSON performs one authenticated request and decodes the JSON response.
// Status mapping: 404 -> InvoiceNotFound, 409 -> AlreadyCaptured,
// 400/422 -> validation, 5xx/network -> UpstreamUnavailable.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeInternalError, "encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "build request", err)
	}
	req.SetBasicAuth(c.config.APIID, c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeUpstreamUnavailable, "billing request failed", err).
			WithDetail("path", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeUpstreamUnavailable, "read billing response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if respBody == nil {
			return nil
		}
		if err := json.Unmarshal(data, respBody); err != nil {
			return domain.WrapError(domain.ErrorCodeUpstreamUnavailable, "decode billing response", err)
		}
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(data, &apiErr)
	detail := apiErr.Message
	if detail == "" {
		detail = string(data)
	}

	c.logger.Warn("Billing API rejected request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("api_code", apiErr.Code),
		zap.String("detail", detail),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrInvoiceNotFound.WithDetail("path", path).WithDetail("detail", detail)
	case resp.StatusCode == http.StatusConflict:
		return domain.ErrAlreadyCaptured.WithDetail("path", path).WithDetail("detail", detail)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, detail).
			WithDetail("path", path).WithDetail("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return domain.NewDomainError(domain.ErrorCodeUpstreamUnavailable, detail).
			WithDetail("path", path).WithDetail("status", resp.StatusCode)
	default:
		return domain.NewDomainError(domain.ErrorCodeUpstreamUnavailable,
			fmt.Sprintf("unexpected billing response status %d", resp.StatusCode)).
			WithDetail("path", path).WithDetail("detail", detail)
	}
}
