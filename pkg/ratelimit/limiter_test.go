package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igresolver/pkg/config"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(60, 3)

	// Should allow the burst immediately
	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "request %d should be allowed", i+1)
	}

	// Fourth request should be denied until a token refills
	assert.False(t, tb.Allow())

	tb.Reset()
	assert.True(t, tb.Allow(), "request after reset should be allowed")
}

func TestTokenBucketWaitHonorsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, tb.Wait(ctx))
}

func TestTokenBucketWaitRefills(t *testing.T) {
	// 6000 per minute is one token every 10ms
	tb := NewTokenBucket(6000, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, tb.Wait(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNewFromConfig(t *testing.T) {
	tb := New(config.RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2})
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
	assert.NoError(t, l.Wait(context.Background()))
}
