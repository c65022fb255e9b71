package hostbill_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/adapters/hostbill"
	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*hostbill.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := hostbill.NewClient(hostbill.Config{
		BaseURL: server.URL,
		APIID:   "api-id",
		APIKey:  "api-key",
	}, server.Client(), zap.NewNop())
	return client, server
}

func TestClient_CreateOrder_Success(t *testing.T) {
	var gotAuthID, gotAuthKey string
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/orders", r.URL.Path)
		gotAuthID, gotAuthKey, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"order_id":   "order-77",
			"invoice_id": "inv-77",
		})
	})

	resp, err := client.CreateOrder(context.Background(), &ports.CreateOrderRequest{
		Customer: domain.Customer{FirstName: "Jana", LastName: "Novakova", Email: "jana@example.com"},
		LineItems: []domain.LineItem{
			{ProductID: "vps-small", UnitPrice: decimal.NewFromFloat(49.90), Quantity: 1},
		},
		AffiliateID: "aff-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "order-77", resp.OrderID)
	assert.Equal(t, "inv-77", resp.InvoiceID)

	assert.Equal(t, "api-id", gotAuthID)
	assert.Equal(t, "api-key", gotAuthKey)
	assert.Equal(t, "aff-9", gotBody["affiliate_id"])
}

func TestClient_CreateOrder_IncompleteResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"order_id": "order-77"})
	})

	_, err := client.CreateOrder(context.Background(), &ports.CreateOrderRequest{})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOrderCreationFailed))
}

func TestClient_CapturePayment_Success(t *testing.T) {
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/invoices/inv-77/capture", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]string{
			"previous_status": "Unpaid",
			"current_status":  "Paid",
		})
	})

	resp, err := client.CapturePayment(context.Background(), &ports.CaptureRequest{
		InvoiceID:     "inv-77",
		Amount:        decimal.NewFromFloat(49.90),
		Currency:      "EUR",
		Module:        "comgate",
		TransactionID: "gw-txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Unpaid", resp.PreviousStatus)
	assert.Equal(t, "Paid", resp.CurrentStatus)

	assert.Equal(t, "49.9", gotBody["amount"])
	assert.Equal(t, "comgate", gotBody["module"])
	assert.Equal(t, "gw-txn-1", gotBody["transaction_id"])
}

func TestClient_CapturePayment_Conflict(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code": "ALREADY_PAID", "message": "invoice already settled",
		})
	})

	_, err := client.CapturePayment(context.Background(), &ports.CaptureRequest{InvoiceID: "inv-77"})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAlreadyCaptured))
}

func TestClient_GetInvoiceStatus_Paid(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/invoices/inv-77", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "Paid",
			"is_paid":   true,
			"date_paid": "2026-08-30T14:05:00Z",
			"amount":    "49.90",
			"currency":  "EUR",
		})
	})

	status, err := client.GetInvoiceStatus(context.Background(), "inv-77")
	require.NoError(t, err)
	assert.True(t, status.IsPaid)
	assert.Equal(t, "Paid", status.Status)
	require.NotNil(t, status.DatePaid)
	assert.Equal(t, 2026, status.DatePaid.Year())
	assert.True(t, decimal.NewFromFloat(49.90).Equal(status.Amount))
}

func TestClient_GetInvoiceStatus_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetInvoiceStatus(context.Background(), "inv-missing")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvoiceNotFound))
}

func TestClient_GetInvoiceStatus_ServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetInvoiceStatus(context.Background(), "inv-77")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeUpstreamUnavailable))
	assert.True(t, domain.IsRetriable(err))
}

func TestClient_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := hostbill.NewClient(hostbill.Config{
		BaseURL: server.URL,
		APIID:   "api-id",
		APIKey:  "api-key",
	}, server.Client(), zap.NewNop())
	server.Close()

	_, err := client.GetInvoiceStatus(context.Background(), "inv-77")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeUpstreamUnavailable))
}

func TestClient_ValidationRejection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code": "INVALID_AMOUNT", "message": "amount must be positive",
		})
	})

	_, err := client.CapturePayment(context.Background(), &ports.CaptureRequest{InvoiceID: "inv-77"})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
}
