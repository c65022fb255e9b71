package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/billingops/payment-orchestrator/internal/domain"
)

func TestOrder_Total(t *testing.T) {
	order := &domain.Order{
		LineItems: []domain.LineItem{
			{ProductID: "vps-small", UnitPrice: decimal.NewFromFloat(9.90), Quantity: 2},
			{ProductID: "domain-com", UnitPrice: decimal.NewFromFloat(12.50), Quantity: 1},
		},
	}

	assert.True(t, decimal.NewFromFloat(32.30).Equal(order.Total()),
		"got %s", order.Total())
}

func TestOrder_Total_ZeroQuantityCountsAsOne(t *testing.T) {
	order := &domain.Order{
		LineItems: []domain.LineItem{
			{ProductID: "vps-small", UnitPrice: decimal.NewFromFloat(10.00), Quantity: 0},
			{ProductID: "addon", UnitPrice: decimal.NewFromFloat(5.00), Quantity: -3},
		},
	}

	assert.True(t, decimal.NewFromFloat(15.00).Equal(order.Total()),
		"got %s", order.Total())
}

func TestOrder_Total_Empty(t *testing.T) {
	order := &domain.Order{}
	assert.True(t, order.Total().IsZero())
}

func TestGatewayResult_Authenticated(t *testing.T) {
	ok := &domain.GatewayResult{Outcome: domain.GatewayOutcomeSuccess}
	assert.True(t, ok.Authenticated())

	failed := &domain.GatewayResult{
		Outcome:       domain.GatewayOutcomeFailed,
		FailureReason: "card_declined",
	}
	assert.True(t, failed.Authenticated(), "an authenticated decline is still authenticated")

	forged := &domain.GatewayResult{
		Outcome:       domain.GatewayOutcomeFailed,
		FailureReason: domain.ReasonAuthenticationFailed,
	}
	assert.False(t, forged.Authenticated())
}
