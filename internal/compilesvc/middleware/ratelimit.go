// Package middleware holds echo.MiddlewareFunc adapters for compilesvc's
// REST façade.
package middleware

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Config configures RateLimit: requests per second plus a burst allowance.
type Config struct {
	Enabled              bool
	MaxRequestsPerSecond float64
	Burst                int
}

// callerRateLimiter is a per-caller token bucket, keyed by callerID: a
// compile request is attributed to the bearer token that identifies the
// deployer when one is presented, and to its remote IP otherwise.
type callerRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
}

func newCallerRateLimiter(r float64, b int) *callerRateLimiter {
	return &callerRateLimiter{
		rate:  rate.Limit(r),
		burst: b,
	}
}

func (c *callerRateLimiter) getLimiter(caller string) *rate.Limiter {
	if limiter, ok := c.limiters.Load(caller); ok {
		return limiter.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(c.rate, c.burst)
	c.limiters.Store(caller, limiter)
	return limiter
}

// callerID identifies the caller for throttling purposes: the bearer
// token if one was presented, falling back to the remote IP the way an
// unauthenticated REST caller would be tracked.
func callerID(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); auth != "" {
		return auth
	}
	return c.RealIP()
}

// RateLimit returns a no-op middleware when cfg.Enabled is false, so
// callers can wire it unconditionally.
func RateLimit(cfg Config) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	rl := newCallerRateLimiter(cfg.MaxRequestsPerSecond, cfg.Burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := rl.getLimiter(callerID(c))
			if !limiter.Allow() {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
