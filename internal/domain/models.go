package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GatewayOutcome represents the normalized result reported by a payment gateway
type GatewayOutcome string

const (
	GatewayOutcomeSuccess   GatewayOutcome = "success"
	GatewayOutcomeCancelled GatewayOutcome = "cancelled"
	GatewayOutcomePending   GatewayOutcome = "pending"
	GatewayOutcomeFailed    GatewayOutcome = "failed"
)

// DeliveryChannel identifies how a gateway confirmation reached us
type DeliveryChannel string

const (
	DeliveryChannelReturn   DeliveryChannel = "return"   // Synchronous browser redirect back
	DeliveryChannelCallback DeliveryChannel = "callback" // Asynchronous server-to-server notification
)

// Customer holds the purchaser identity captured at order creation.
// Immutable after the order is created; the billing system owns the record.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	City      string `json:"city"`
	PostCode  string `json:"post_code"`
	Country   string `json:"country"`
}

// LineItem is one product position on an order
type LineItem struct {
	ProductID    string          `json:"product_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	BillingCycle string          `json:"billing_cycle"`
	Quantity     int             `json:"quantity"`
}

// Order is a read-only cached copy of a billing-system order.
// OrderID and InvoiceID are assigned by the billing system and may differ.
type Order struct {
	CreatedAt   time.Time  `json:"created_at"`
	OrderID     string     `json:"order_id"`
	InvoiceID   string     `json:"invoice_id"`
	AffiliateID string     `json:"affiliate_id,omitempty"`
	Customer    Customer   `json:"customer"`
	LineItems   []LineItem `json:"line_items"`
}

// Total sums unit price times quantity across all line items
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.LineItems {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(qty))))
	}
	return total
}

// PaymentAttempt is one try at paying an order. Multiple attempts may exist
// per invoice over time (retry after cancel), but at most one may be in
// flight at once.
type PaymentAttempt struct {
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	AttemptID            string          `json:"attempt_id"`
	OrderID              string          `json:"order_id"`
	InvoiceID            string          `json:"invoice_id"`
	Method               string          `json:"method"`
	State                AttemptState    `json:"state"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	Currency             string          `json:"currency"`
	Amount               decimal.Decimal `json:"amount"`
}

// GatewayResult is the normalized confirmation produced by a gateway adapter
// from either a browser return or an async callback. Immutable on arrival.
type GatewayResult struct {
	AttemptID            string          `json:"attempt_id,omitempty"`
	InvoiceID            string          `json:"invoice_id,omitempty"`
	Outcome              GatewayOutcome  `json:"outcome"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	RawAmount            decimal.Decimal `json:"raw_amount"`
	RawCurrency          string          `json:"raw_currency,omitempty"`
	ReceivedVia          DeliveryChannel `json:"received_via"`
	FailureReason        string          `json:"failure_reason,omitempty"`
}

// Authenticated reports whether the result came from a verified source.
// Unverifiable callbacks carry Outcome=Failed with this reason and must
// never reach the billing system.
func (r *GatewayResult) Authenticated() bool {
	return r.FailureReason != ReasonAuthenticationFailed
}

// ReasonAuthenticationFailed marks a callback whose signature check failed
const ReasonAuthenticationFailed = "authentication_failed"

// CaptureRecord is the immutable result of one capture instruction issued
// to the billing system. At most one exists per payment attempt.
type CaptureRecord struct {
	CapturedAt     time.Time `json:"captured_at"`
	InvoiceID      string    `json:"invoice_id"`
	TransactionID  string    `json:"transaction_id"`
	PreviousStatus string    `json:"previous_status"`
	CurrentStatus  string    `json:"current_status"`
}

// VerificationOutcome is the result of polling invoice status with bounded
// retries. TimedOut=true means "unknown, check later", not failure: the
// invoice may still settle asynchronously on the billing side.
type VerificationOutcome struct {
	DatePaid     *time.Time `json:"date_paid,omitempty"`
	InvoiceID    string     `json:"invoice_id"`
	Status       string     `json:"status"`
	AttemptsUsed int        `json:"attempts_used"`
	IsPaid       bool       `json:"is_paid"`
	TimedOut     bool       `json:"timed_out"`
}
