package domain

// AttemptState represents the lifecycle state of a payment attempt
type AttemptState string

const (
	AttemptStateCreated         AttemptState = "created"          // Order exists, gateway not contacted yet
	AttemptStateInitialized     AttemptState = "initialized"      // Gateway session opened, redirect issued
	AttemptStateAwaitingCapture AttemptState = "awaiting_capture" // Gateway confirmed success, capture in flight
	AttemptStateCaptured        AttemptState = "captured"         // Billing system recorded the payment
	AttemptStateCaptureFailed   AttemptState = "capture_failed"   // Billing system rejected the capture (manual reconciliation)
	AttemptStateCancelled       AttemptState = "cancelled"        // User abandoned the gateway flow
	AttemptStateFailed          AttemptState = "failed"           // Gateway declined or errored
	AttemptStateVerified        AttemptState = "verified"         // Invoice confirmed paid by polling
	AttemptStateVerifyTimedOut  AttemptState = "verify_timed_out" // Polling exhausted without a paid invoice
)

// validTransitions encodes the payment attempt state machine.
// States with no entry are dead ends: any transition out of them is rejected.
var validTransitions = map[AttemptState]map[AttemptState]bool{
	AttemptStateCreated: {
		AttemptStateInitialized: true,
	},
	AttemptStateInitialized: {
		AttemptStateAwaitingCapture: true,
		AttemptStateCancelled:       true,
		AttemptStateFailed:          true,
		// Out-of-band settlement: no gateway confirmation ever arrives for
		// instruction-based methods, so a paid verification settles the
		// attempt directly.
		AttemptStateVerified: true,
	},
	AttemptStateAwaitingCapture: {
		AttemptStateCaptured:      true,
		AttemptStateCaptureFailed: true,
	},
	AttemptStateCaptured: {
		AttemptStateVerified:       true,
		AttemptStateVerifyTimedOut: true,
	},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to AttemptState) bool {
	return validTransitions[from][to]
}

// IsTerminal returns true for states with no outgoing transitions.
// Transition calls from a terminal state are no-ops, not errors.
func (s AttemptState) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// IsInFlight returns true while a gateway session may still complete.
// The ledger refuses a second in-flight attempt for the same invoice.
func (s AttemptState) IsInFlight() bool {
	return s == AttemptStateInitialized || s == AttemptStateAwaitingCapture
}

// IsValid returns true if s is a known attempt state
func (s AttemptState) IsValid() bool {
	switch s {
	case AttemptStateCreated, AttemptStateInitialized, AttemptStateAwaitingCapture,
		AttemptStateCaptured, AttemptStateCaptureFailed, AttemptStateCancelled,
		AttemptStateFailed, AttemptStateVerified, AttemptStateVerifyTimedOut:
		return true
	}
	return false
}
