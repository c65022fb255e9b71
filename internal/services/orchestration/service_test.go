package orchestration_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
	"github.com/billingops/payment-orchestrator/internal/ledger"
	"github.com/billingops/payment-orchestrator/internal/services/orchestration"
	"github.com/billingops/payment-orchestrator/pkg/resilience"
)

// MockBillingClient mocks the billing system client
type MockBillingClient struct {
	mock.Mock
}

func (m *MockBillingClient) CreateOrder(ctx context.Context, req *ports.CreateOrderRequest) (*ports.CreateOrderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.CreateOrderResponse), args.Error(1)
}

func (m *MockBillingClient) CapturePayment(ctx context.Context, req *ports.CaptureRequest) (*ports.CaptureResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.CaptureResponse), args.Error(1)
}

func (m *MockBillingClient) GetInvoiceStatus(ctx context.Context, invoiceID string) (*ports.InvoiceStatus, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.InvoiceStatus), args.Error(1)
}

// stubGateway is a configurable gateway adapter for service tests
type stubGateway struct {
	mu             sync.Mutex
	name           string
	initResp       *ports.InitializeResponse
	initErr        error
	initCalls      int
	returnResult   *domain.GatewayResult
	callbackResult *domain.GatewayResult
	parseErr       error
	outOfBand      bool
}

func (g *stubGateway) OutOfBand() bool {
	return g.outOfBand
}

func (g *stubGateway) Name() string {
	if g.name == "" {
		return "stub"
	}
	return g.name
}

func (g *stubGateway) Initialize(ctx context.Context, req *ports.InitializeRequest) (*ports.InitializeResponse, error) {
	g.mu.Lock()
	g.initCalls++
	g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	if g.initResp != nil {
		return g.initResp, nil
	}
	return &ports.InitializeResponse{
		RedirectURL: "https://gateway.example.com/pay/" + req.InvoiceID,
		GatewayRef:  "gw-" + req.InvoiceID,
	}, nil
}

func (g *stubGateway) ParseReturn(query url.Values) (*domain.GatewayResult, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	cp := *g.returnResult
	return &cp, nil
}

func (g *stubGateway) ParseCallback(body []byte, headers http.Header) (*domain.GatewayResult, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	cp := *g.callbackResult
	return &cp, nil
}

func (g *stubGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initCalls
}

func testPolicy() resilience.PollingPolicy {
	return resilience.PollingPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Millisecond,
	}
}

func newTestService(billing ports.BillingClient, led ports.Ledger, gateways ...ports.GatewayAdapter) *orchestration.Service {
	return orchestration.New(
		billing,
		led,
		gateways,
		[]string{"EUR", "USD", "CZK"},
		testPolicy(),
		orchestration.CallbackURLs{
			ReturnURL:  "https://shop.example.com/payment/return",
			CancelURL:  "https://shop.example.com/payment/cancel",
			PendingURL: "https://shop.example.com/payment/pending",
		},
		zap.NewNop(),
	)
}

func testOrderRequest() *orchestration.OrderRequest {
	return &orchestration.OrderRequest{
		Customer: domain.Customer{
			FirstName: "Jana",
			LastName:  "Novakova",
			Email:     "jana@example.com",
		},
		LineItems: []domain.LineItem{
			{ProductID: "vps-small", UnitPrice: decimal.NewFromFloat(49.90), Quantity: 1},
		},
		Currency: "EUR",
		Method:   "stub",
	}
}

// seedInitialized stores an Initialized attempt so reconcile tests can start
// from the state a real payment flow would be in after StartPayment.
func seedInitialized(t *testing.T, led ports.Ledger, attemptID, invoiceID string) {
	t.Helper()
	require.NoError(t, led.Put(context.Background(), &domain.PaymentAttempt{
		AttemptID: attemptID,
		OrderID:   "order-1",
		InvoiceID: invoiceID,
		Method:    "stub",
		State:     domain.AttemptStateInitialized,
		Amount:    decimal.NewFromFloat(49.90),
		Currency:  "EUR",
	}))
}

func TestService_StartOrder_Success(t *testing.T) {
	mockBilling := new(MockBillingClient)
	led := ledger.NewMemoryLedger()
	service := newTestService(mockBilling, led, &stubGateway{})

	ctx := context.Background()
	mockBilling.On("CreateOrder", ctx, mock.AnythingOfType("*ports.CreateOrderRequest")).
		Return(&ports.CreateOrderResponse{OrderID: "order-77", InvoiceID: "inv-77"}, nil)

	result, err := service.StartOrder(ctx, testOrderRequest())
	require.NoError(t, err)
	assert.Equal(t, "order-77", result.Order.OrderID)
	assert.Equal(t, "inv-77", result.Order.InvoiceID)
	assert.NotEmpty(t, result.AttemptID)

	// The attempt is seeded in Created state and carries the order total
	attempt, err := led.Get(ctx, "inv-77")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStateCreated, attempt.State)
	assert.True(t, decimal.NewFromFloat(49.90).Equal(attempt.Amount))
	assert.Equal(t, "EUR", attempt.Currency)

	mockBilling.AssertExpectations(t)
}

func TestService_StartOrder_MissingEmail(t *testing.T) {
	mockBilling := new(MockBillingClient)
	service := newTestService(mockBilling, ledger.NewMemoryLedger(), &stubGateway{})

	req := testOrderRequest()
	req.Customer.Email = ""

	_, err := service.StartOrder(context.Background(), req)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationMissingField))
	mockBilling.AssertNotCalled(t, "CreateOrder")
}

func TestService_StartOrder_NoLineItems(t *testing.T) {
	mockBilling := new(MockBillingClient)
	service := newTestService(mockBilling, ledger.NewMemoryLedger(), &stubGateway{})

	req := testOrderRequest()
	req.LineItems = nil

	_, err := service.StartOrder(context.Background(), req)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationMissingField))
	mockBilling.AssertNotCalled(t, "CreateOrder")
}

func TestService_StartOrder_CurrencyNotAllowed(t *testing.T) {
	mockBilling := new(MockBillingClient)
	service := newTestService(mockBilling, ledger.NewMemoryLedger(), &stubGateway{})

	req := testOrderRequest()
	req.Currency = "GBP"

	_, err := service.StartOrder(context.Background(), req)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationCurrency))
	mockBilling.AssertNotCalled(t, "CreateOrder")
}

func TestService_StartOrder_UnsupportedMethod(t *testing.T) {
	mockBilling := new(MockBillingClient)
	service := newTestService(mockBilling, ledger.NewMemoryLedger(), &stubGateway{})

	req := testOrderRequest()
	req.Method = "paypal"

	_, err := service.StartOrder(context.Background(), req)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeUnsupportedMethod))
	mockBilling.AssertNotCalled(t, "CreateOrder")
}

func TestService_StartOrder_ZeroTotal(t *testing.T) {
	mockBilling := new(MockBillingClient)
	service := newTestService(mockBilling, ledger.NewMemoryLedger(), &stubGateway{})

	req := testOrderRequest()
	req.LineItems = []domain.LineItem{
		{ProductID: "freebie", UnitPrice: decimal.Zero, Quantity: 1},
	}

	_, err := service.StartOrder(context.Background(), req)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationAmountInvalid))
	mockBilling.AssertNotCalled(t, "CreateOrder")
}

func TestService_StartOrder_BillingErrorNotRetried(t *testing.T) {
	mockBilling := new(MockBillingClient)
	led := ledger.NewMemoryLedger()
	service := newTestService(mockBilling, led, &stubGateway{})

	ctx := context.Background()
	mockBilling.On("CreateOrder", ctx, mock.AnythingOfType("*ports.CreateOrderRequest")).
		Return(nil, domain.ErrUpstreamUnavailable).
		Once()

	_, err := service.StartOrder(ctx, testOrderRequest())
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOrderCreationFailed))

	// One billing call, nothing in the ledger
	mockBilling.AssertNumberOfCalls(t, "CreateOrder", 1)
}
