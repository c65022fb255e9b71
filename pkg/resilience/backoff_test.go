package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billingops/payment-orchestrator/pkg/resilience"
)

func TestPollingPolicy_Valid(t *testing.T) {
	assert.True(t, resilience.DefaultPollingPolicy().Valid())
	assert.False(t, resilience.PollingPolicy{}.Valid())
	assert.False(t, resilience.PollingPolicy{MaxAttempts: 0, InitialDelay: time.Second, BackoffMultiplier: 2}.Valid())
	assert.False(t, resilience.PollingPolicy{MaxAttempts: 3, InitialDelay: time.Second, BackoffMultiplier: 0.5}.Valid())
}

func TestPollingPolicy_DelayFor_ExponentialGrowth(t *testing.T) {
	policy := resilience.PollingPolicy{
		MaxAttempts:       5,
		InitialDelay:      2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
	}

	assert.Equal(t, 2*time.Second, policy.DelayFor(0))
	assert.Equal(t, 4*time.Second, policy.DelayFor(1))
	assert.Equal(t, 8*time.Second, policy.DelayFor(2))
	assert.Equal(t, 16*time.Second, policy.DelayFor(3))
	assert.Equal(t, 30*time.Second, policy.DelayFor(4), "capped at MaxDelay")
	assert.Equal(t, 30*time.Second, policy.DelayFor(10))
}

func TestPollingPolicy_DelayFor_NegativeAttempt(t *testing.T) {
	policy := resilience.PollingPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
	}
	assert.Equal(t, time.Second, policy.DelayFor(-1))
}

func TestPollingPolicy_DelayFor_JitterStaysInBounds(t *testing.T) {
	policy := resilience.PollingPolicy{
		MaxAttempts:       3,
		InitialDelay:      10 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		Jitter:            0.1,
	}

	for i := 0; i < 100; i++ {
		delay := policy.DelayFor(0)
		assert.GreaterOrEqual(t, delay, 9*time.Second)
		assert.LessOrEqual(t, delay, 11*time.Second)
	}
}

func TestPollingPolicy_Sleep_CompletesDelay(t *testing.T) {
	policy := resilience.PollingPolicy{
		MaxAttempts:       3,
		InitialDelay:      5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	start := time.Now()
	err := policy.Sleep(context.Background(), 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestPollingPolicy_Sleep_CancelledContext(t *testing.T) {
	policy := resilience.PollingPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Hour,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := policy.Sleep(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation must preempt the sleep")
}

func TestPollingPolicy_Sleep_ZeroDelayChecksContext(t *testing.T) {
	policy := resilience.PollingPolicy{MaxAttempts: 1}

	assert.NoError(t, policy.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, policy.Sleep(ctx, 0), context.Canceled)
}
