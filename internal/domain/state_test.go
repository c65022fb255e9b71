package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/billingops/payment-orchestrator/internal/domain"
)

func TestCanTransition_AllowedMoves(t *testing.T) {
	allowed := []struct {
		from domain.AttemptState
		to   domain.AttemptState
	}{
		{domain.AttemptStateCreated, domain.AttemptStateInitialized},
		{domain.AttemptStateInitialized, domain.AttemptStateAwaitingCapture},
		{domain.AttemptStateInitialized, domain.AttemptStateCancelled},
		{domain.AttemptStateInitialized, domain.AttemptStateFailed},
		{domain.AttemptStateInitialized, domain.AttemptStateVerified},
		{domain.AttemptStateAwaitingCapture, domain.AttemptStateCaptured},
		{domain.AttemptStateAwaitingCapture, domain.AttemptStateCaptureFailed},
		{domain.AttemptStateCaptured, domain.AttemptStateVerified},
		{domain.AttemptStateCaptured, domain.AttemptStateVerifyTimedOut},
	}

	for _, tc := range allowed {
		assert.True(t, domain.CanTransition(tc.from, tc.to),
			"expected %s -> %s to be allowed", tc.from, tc.to)
	}
}

func TestCanTransition_ForbiddenMoves(t *testing.T) {
	forbidden := []struct {
		from domain.AttemptState
		to   domain.AttemptState
	}{
		// Skipping initialization
		{domain.AttemptStateCreated, domain.AttemptStateAwaitingCapture},
		{domain.AttemptStateCreated, domain.AttemptStateCaptured},
		// Going backwards
		{domain.AttemptStateInitialized, domain.AttemptStateCreated},
		{domain.AttemptStateCaptured, domain.AttemptStateInitialized},
		// Out of dead ends
		{domain.AttemptStateCancelled, domain.AttemptStateInitialized},
		{domain.AttemptStateFailed, domain.AttemptStateInitialized},
		{domain.AttemptStateCaptureFailed, domain.AttemptStateCaptured},
		{domain.AttemptStateVerified, domain.AttemptStateCaptured},
		{domain.AttemptStateVerifyTimedOut, domain.AttemptStateVerified},
		// Self transitions
		{domain.AttemptStateInitialized, domain.AttemptStateInitialized},
		{domain.AttemptStateCaptured, domain.AttemptStateCaptured},
	}

	for _, tc := range forbidden {
		assert.False(t, domain.CanTransition(tc.from, tc.to),
			"expected %s -> %s to be forbidden", tc.from, tc.to)
	}
}

func TestAttemptState_IsTerminal(t *testing.T) {
	terminal := []domain.AttemptState{
		domain.AttemptStateCancelled,
		domain.AttemptStateFailed,
		domain.AttemptStateCaptureFailed,
		domain.AttemptStateVerified,
		domain.AttemptStateVerifyTimedOut,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	nonTerminal := []domain.AttemptState{
		domain.AttemptStateCreated,
		domain.AttemptStateInitialized,
		domain.AttemptStateAwaitingCapture,
		domain.AttemptStateCaptured,
	}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to be non-terminal", s)
	}
}

func TestAttemptState_IsInFlight(t *testing.T) {
	assert.True(t, domain.AttemptStateInitialized.IsInFlight())
	assert.True(t, domain.AttemptStateAwaitingCapture.IsInFlight())

	assert.False(t, domain.AttemptStateCreated.IsInFlight())
	assert.False(t, domain.AttemptStateCaptured.IsInFlight())
	assert.False(t, domain.AttemptStateCancelled.IsInFlight())
	assert.False(t, domain.AttemptStateFailed.IsInFlight())
}

func TestAttemptState_IsValid(t *testing.T) {
	assert.True(t, domain.AttemptStateCreated.IsValid())
	assert.True(t, domain.AttemptStateVerifyTimedOut.IsValid())
	assert.False(t, domain.AttemptState("").IsValid())
	assert.False(t, domain.AttemptState("confirmed").IsValid())
}
