package verification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowConsumesTokensUntilExhausted(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{MaxRequests: 2, WindowSize: time.Minute, CleanupPeriod: time.Hour})
	defer rl.Stop()

	require.NoError(t, rl.Allow("caller-a"))
	require.NoError(t, rl.Allow("caller-a"))
	require.ErrorIs(t, rl.Allow("caller-a"), ErrRateLimited)
}

func TestAllowTracksCallersIndependently(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{MaxRequests: 1, WindowSize: time.Minute, CleanupPeriod: time.Hour})
	defer rl.Stop()

	require.NoError(t, rl.Allow("caller-a"))
	require.NoError(t, rl.Allow("caller-b"))
	require.ErrorIs(t, rl.Allow("caller-a"), ErrRateLimited)
}

func TestResetClearsCallerBucket(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{MaxRequests: 1, WindowSize: time.Minute, CleanupPeriod: time.Hour})
	defer rl.Stop()

	require.NoError(t, rl.Allow("caller-a"))
	require.ErrorIs(t, rl.Allow("caller-a"), ErrRateLimited)

	rl.Reset("caller-a")
	require.NoError(t, rl.Allow("caller-a"))
}

func TestGetRetryAfterIsZeroWhenTokensRemain(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	require.Equal(t, time.Duration(0), rl.GetRetryAfter("caller-a"))
}

func TestGetStatsReportsActiveCallers(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{MaxRequests: 5, WindowSize: time.Minute, CleanupPeriod: time.Hour})
	defer rl.Stop()

	require.NoError(t, rl.Allow("caller-a"))
	require.NoError(t, rl.Allow("caller-b"))

	stats := rl.GetStats()
	require.Equal(t, 2, stats.ActiveUsers)
	require.Equal(t, 5, stats.MaxTokens)
}
