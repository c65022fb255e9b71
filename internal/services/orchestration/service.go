package orchestration

import (
	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
	"github.com/billingops/payment-orchestrator/pkg/resilience"
)

// CallbackURLs are the targets a gateway sends the user's browser back to.
// The orchestrator appends the outcome hint so ParseReturn can tell which
// leg of the flow the redirect came from.
type CallbackURLs struct {
	ReturnURL  string
	CancelURL  string
	PendingURL string
}

// Service drives the payment completion flow: order creation, payment
// initialization, return/callback reconciliation, and invoice verification.
// The ledger is the single shared mutable state; everything else is
// stateless over injected collaborators, so multiple Service instances can
// coexist (e.g., per tenant).
type Service struct {
	billing           ports.BillingClient
	ledger            ports.Ledger
	gateways          map[string]ports.GatewayAdapter
	allowedCurrencies map[string]bool
	defaultPolicy     resilience.PollingPolicy
	urls              CallbackURLs
	logger            *zap.Logger
}

// New creates the orchestration service. Gateway adapters are registered by
// their method name; an empty currency list allows any currency.
func New(
	billing ports.BillingClient,
	ledger ports.Ledger,
	adapters []ports.GatewayAdapter,
	allowedCurrencies []string,
	defaultPolicy resilience.PollingPolicy,
	urls CallbackURLs,
	logger *zap.Logger,
) *Service {
	gateways := make(map[string]ports.GatewayAdapter, len(adapters))
	for _, adapter := range adapters {
		gateways[adapter.Name()] = adapter
	}

	currencies := make(map[string]bool, len(allowedCurrencies))
	for _, c := range allowedCurrencies {
		currencies[c] = true
	}

	if !defaultPolicy.Valid() {
		defaultPolicy = resilience.DefaultPollingPolicy()
	}

	return &Service{
		billing:           billing,
		ledger:            ledger,
		gateways:          gateways,
		allowedCurrencies: currencies,
		defaultPolicy:     defaultPolicy,
		urls:              urls,
		logger:            logger,
	}
}

// adapterFor resolves a gateway adapter by method name
func (s *Service) adapterFor(method string) (ports.GatewayAdapter, error) {
	adapter, ok := s.gateways[method]
	if !ok {
		return nil, domain.ErrUnsupportedMethod.WithDetail("method", method)
	}
	return adapter, nil
}

// currencyAllowed checks the configured allow-list
func (s *Service) currencyAllowed(currency string) bool {
	if len(s.allowedCurrencies) == 0 {
		return true
	}
	return s.allowedCurrencies[currency]
}
