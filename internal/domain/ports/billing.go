package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/billingops/payment-orchestrator/internal/domain"
)

// CreateOrderRequest carries everything the billing system needs to open an order
type CreateOrderRequest struct {
	Customer    domain.Customer
	LineItems   []domain.LineItem
	AffiliateID string
}

// CreateOrderResponse holds the identifiers assigned by the billing system.
// OrderID and InvoiceID are opaque and may differ.
type CreateOrderResponse struct {
	OrderID   string
	InvoiceID string
}

// CaptureRequest instructs the billing system to record a confirmed payment
type CaptureRequest struct {
	InvoiceID     string
	Amount        decimal.Decimal
	Currency      string
	Module        string // Gateway/module name as known to the billing system
	TransactionID string
	Note          string
}

// CaptureResponse reports the invoice status change caused by the capture
type CaptureResponse struct {
	PreviousStatus string
	CurrentStatus  string
}

// InvoiceStatus is a point-in-time snapshot of an invoice
type InvoiceStatus struct {
	DatePaid *time.Time
	Status   string
	Currency string
	Amount   decimal.Decimal
	IsPaid   bool
}

// BillingClient is the typed wrapper around the external billing API.
// Implementations map transport failures to the domain error taxonomy:
// ErrUpstreamUnavailable for network/5xx, ErrInvoiceNotFound,
// ErrAlreadyCaptured, and validation codes for 4xx rejections.
type BillingClient interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
	CapturePayment(ctx context.Context, req *CaptureRequest) (*CaptureResponse, error)
	GetInvoiceStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error)
}
