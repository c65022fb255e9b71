package resilience

import (
	"time"
)

// TimeoutConfig defines the orchestrator's timeout hierarchy, from the HTTP
// entry point down to a single upstream call. Each layer must complete
// before its parent times out so a stuck gateway or billing endpoint fails
// one request instead of hanging the process.
type TimeoutConfig struct {
	// Handler layer: overall request budget for a return/callback delivery
	HTTPHandler time.Duration

	// Upstream calls
	BillingAPI time.Duration // One billing system request
	GatewayAPI time.Duration // One gateway request (initialize)
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 60 * time.Second,
		BillingAPI:  30 * time.Second,
		GatewayAPI:  30 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 5 * time.Second,
		BillingAPI:  2 * time.Second,
		GatewayAPI:  2 * time.Second,
	}
}
