package orchestration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// OrderRequest is the caller's input for opening an order
type OrderRequest struct {
	Customer    domain.Customer
	LineItems   []domain.LineItem
	AffiliateID string
	Currency    string
	Method      string // Requested payment method
}

// OrderResult reports the created order and the attempt prepared for it
type OrderResult struct {
	Order     *domain.Order
	AttemptID string
}

// StartOrder validates the request, creates the order in the billing system
// and seeds a payment attempt in Created state for the returned invoice.
//
// Order creation failures are surfaced immediately with the billing system's
// raw error attached and are never retried here: the billing system does not
// guarantee idempotent order creation, so blind retries could double-order.
func (s *Service) StartOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	if req.Customer.Email == "" {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "customer.email")
	}
	if len(req.LineItems) == 0 {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "line_items")
	}
	if req.Method != "" {
		if _, err := s.adapterFor(req.Method); err != nil {
			return nil, err
		}
	}
	if !s.currencyAllowed(req.Currency) {
		return nil, domain.ErrValidationCurrency.WithDetail("currency", req.Currency)
	}

	order := &domain.Order{
		Customer:    req.Customer,
		LineItems:   req.LineItems,
		AffiliateID: req.AffiliateID,
		CreatedAt:   time.Now().UTC(),
	}
	total := order.Total()
	if !total.IsPositive() {
		return nil, domain.ErrValidationAmountInvalid.WithDetail("amount", total.String())
	}

	resp, err := s.billing.CreateOrder(ctx, &ports.CreateOrderRequest{
		Customer:    req.Customer,
		LineItems:   req.LineItems,
		AffiliateID: req.AffiliateID,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeOrderCreationFailed, "order creation failed", err)
	}
	order.OrderID = resp.OrderID
	order.InvoiceID = resp.InvoiceID

	attempt := &domain.PaymentAttempt{
		AttemptID: uuid.NewString(),
		OrderID:   resp.OrderID,
		InvoiceID: resp.InvoiceID,
		Method:    req.Method,
		State:     domain.AttemptStateCreated,
		Amount:    total,
		Currency:  req.Currency,
		CreatedAt: order.CreatedAt,
	}
	if err := s.ledger.Put(ctx, attempt); err != nil {
		return nil, err
	}

	s.logger.Info("Order started",
		zap.String("order_id", resp.OrderID),
		zap.String("invoice_id", resp.InvoiceID),
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("amount", total.String()),
		zap.String("currency", req.Currency),
	)

	return &OrderResult{Order: order, AttemptID: attempt.AttemptID}, nil
}
