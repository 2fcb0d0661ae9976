package retry

import (
	"context"
	"math/rand/v2"
	"time"

	errs "igresolver/pkg/errors"
)

// BackoffStrategy computes the pause before retry number attempt, given the
// error that failed it
type BackoffStrategy interface {
	NextDelay(attempt int, err error) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt up to
// MaxDelay, then spreads it by ±JitterFactor. A rate limited response waits
// at least RateLimitDelay.
type ExponentialBackoff struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFactor   float64
	RateLimitDelay time.Duration
}

// DefaultExponentialBackoff returns the backoff used when none is configured
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFactor:   0.1,
		RateLimitDelay: 5 * time.Second,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int, err error) time.Duration {
	if attempt <= 0 {
		return 0
	}

	growth := b.Multiplier
	if growth < 1 {
		growth = 1
	}
	delay := float64(b.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= growth
		if b.MaxDelay > 0 && delay >= float64(b.MaxDelay) {
			break
		}
	}
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	if b.JitterFactor > 0 {
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
	}

	d := time.Duration(max(delay, 0))
	if errs.TypeOf(err) == errs.ErrorTypeRateLimit && d < b.RateLimitDelay {
		d = b.RateLimitDelay
	}
	return d
}

// ConstantBackoff always waits Delay
type ConstantBackoff struct {
	Delay time.Duration
}

func (c *ConstantBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return c.Delay
}

// Wait sleeps for delay unless ctx ends first
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
