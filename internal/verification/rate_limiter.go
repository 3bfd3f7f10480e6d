package verification

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RateLimiter is a per-caller token bucket built on golang.org/x/time/rate,
// the same primitive compilesvc's REST middleware uses for the same job:
// the gRPC front and the REST front share one throttling algorithm rather
// than each rolling its own.
// Default: 5 requests per minute per caller.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerBucket
	rate     rate.Limit
	burst    int

	idleAfter     time.Duration
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
}

type callerBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	MaxRequests   int           // Maximum requests per window (default: 5)
	WindowSize    time.Duration // Time window (default: 1 minute)
	CleanupPeriod time.Duration // How often to sweep idle caller buckets (default: 5 minutes)
}

// DefaultRateLimiterConfig returns the default configuration.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		MaxRequests:   5,
		WindowSize:    time.Minute,
		CleanupPeriod: 5 * time.Minute,
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}

	rl := &RateLimiter{
		limiters:  make(map[string]*callerBucket),
		rate:      rate.Limit(float64(config.MaxRequests) / config.WindowSize.Seconds()),
		burst:     config.MaxRequests,
		idleAfter: config.WindowSize * 2,
		stopChan:  make(chan struct{}),
	}

	rl.cleanupTicker = time.NewTicker(config.CleanupPeriod)
	go rl.cleanupLoop()

	return rl
}

// bucket returns callerID's token bucket, creating one with a fresh
// x/time/rate.Limiter on first sight of that caller.
func (rl *RateLimiter) bucket(callerID string) *callerBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.limiters[callerID]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[callerID] = b
	}
	b.lastAccess = time.Now()
	return b
}

// Allow checks if a request from the given caller ID should be allowed.
// Returns nil if allowed, ErrRateLimited if rate limit exceeded.
func (rl *RateLimiter) Allow(callerID string) error {
	if !rl.bucket(callerID).limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

// GetRemaining returns the number of requests callerID could make right
// now before being throttled.
func (rl *RateLimiter) GetRemaining(callerID string) int {
	return int(rl.bucket(callerID).limiter.Tokens())
}

// GetRetryAfter returns the duration until callerID's next request would
// be allowed, zero if one is allowed right now.
func (rl *RateLimiter) GetRetryAfter(callerID string) time.Duration {
	limiter := rl.bucket(callerID).limiter
	res := limiter.Reserve()
	if !res.OK() {
		return 0
	}
	delay := res.Delay()
	res.Cancel()
	return delay
}

// Reset clears the rate limit bucket for a specific caller.
func (rl *RateLimiter) Reset(callerID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.limiters, callerID)
}

// cleanupLoop periodically removes idle caller buckets.
func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.stopChan:
			return
		}
	}
}

// cleanup removes buckets that have not been touched since idleAfter.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for callerID, b := range rl.limiters {
		if now.Sub(b.lastAccess) > rl.idleAfter {
			delete(rl.limiters, callerID)
		}
	}
}

// Stop stops the rate limiter's cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopChan)
	rl.cleanupTicker.Stop()
}

// RateLimiterStats reports current statistics about the rate limiter.
type RateLimiterStats struct {
	ActiveUsers int
	MaxTokens   int
	RefillRate  time.Duration
}

// GetStats returns current rate limiter statistics.
func (rl *RateLimiter) GetStats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return RateLimiterStats{
		ActiveUsers: len(rl.limiters),
		MaxTokens:   rl.burst,
		RefillRate:  time.Duration(float64(time.Second) / float64(rl.rate)),
	}
}
