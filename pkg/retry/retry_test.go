package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igresolver/pkg/config"
	errs "igresolver/pkg/errors"
	"igresolver/pkg/logger"
)

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts: attempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewTestLogger(),
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt, nil), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterStaysInRange(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 50; i++ {
		delay := backoff.NextDelay(2, nil)
		assert.GreaterOrEqual(t, delay, 140*time.Millisecond)
		assert.LessOrEqual(t, delay, 260*time.Millisecond)
	}
}

func TestExponentialBackoffWaitsLongerWhenRateLimited(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		RateLimitDelay: 3 * time.Second,
	}

	limited := errs.New(errs.ErrorTypeRateLimit, "too many requests")
	assert.Equal(t, 3*time.Second, backoff.NextDelay(1, limited))
	assert.Equal(t, 100*time.Millisecond, backoff.NextDelay(1, errs.New(errs.ErrorTypeServerError, "bad gateway")))
}

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.New(errs.ErrorTypeServerError, "bad gateway")
		}
		return nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	loginErr := errs.New(errs.ErrorTypeLoginRequired, "login_required")

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return loginErr
	}, fastConfig(5))

	assert.Same(t, loginErr, err)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errs.New(errs.ErrorTypeNetwork, "connection reset")
	}, fastConfig(2))

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "max retry attempts (2) exceeded")
}

func TestDoSingleAttemptReturnsErrorUnchanged(t *testing.T) {
	netErr := errs.New(errs.ErrorTypeNetwork, "connection reset")
	err := Do(context.Background(), func(ctx context.Context) error {
		return netErr
	}, fastConfig(1))

	assert.Same(t, netErr, err)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(0)
	cfg.Backoff = &ConstantBackoff{Delay: time.Hour}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) { cancel() }

	err := Do(ctx, func(ctx context.Context) error {
		return errors.New("flaky")
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errs.New(errs.ErrorTypeRateLimit, "slow down")
		}
		return "ok", nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(errs.New(errs.ErrorTypeNotFound, "gone")))
	assert.False(t, DefaultRetryIf(errs.New(errs.ErrorTypeSessionExpired, "cookie expired")))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeRateLimit, "429")))
	assert.True(t, DefaultRetryIf(errors.New("unexpected EOF")))
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RetryConfig{
		Enabled:     true,
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    2 * time.Second,
		Multiplier:  3,
	}, logger.NewNopLogger())
	assert.Equal(t, 4, cfg.MaxAttempts)

	disabled := FromConfig(config.RetryConfig{Enabled: false, MaxAttempts: 4}, logger.NewNopLogger())
	assert.Equal(t, 1, disabled.MaxAttempts)
}
