package resilience

import (
	"context"
	"math/rand"
	"time"
)

// PollingPolicy bounds a retry loop: at most MaxAttempts tries, with the
// delay between tries growing by BackoffMultiplier up to MaxDelay.
type PollingPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration

	// Jitter spreads delays by ±(delay*Jitter) to avoid thundering herd
	// when many verifiers poll the same upstream. Zero disables it.
	Jitter float64
}

// DefaultPollingPolicy returns the invoice verification defaults.
//
// Delay sequence (no jitter): 2s, 4s, 8s, 16s, 30s, 30s...
func DefaultPollingPolicy() PollingPolicy {
	return PollingPolicy{
		MaxAttempts:       5,
		InitialDelay:      2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		Jitter:            0.1,
	}
}

// Valid reports whether the policy can drive at least one attempt
func (p PollingPolicy) Valid() bool {
	return p.MaxAttempts > 0 && p.InitialDelay >= 0 && p.BackoffMultiplier >= 1
}

// DelayFor returns the delay to sleep after the given 0-indexed attempt
func (p PollingPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffMultiplier
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
			break
		}
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		spread := delay * p.Jitter
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Sleep blocks for the post-attempt delay or until the context is cancelled.
// Returns ctx.Err() when cancellation preempted the sleep.
func (p PollingPolicy) Sleep(ctx context.Context, attempt int) error {
	delay := p.DelayFor(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
