package crawler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces navigations against the crawled site. A zero delay
// disables pacing.
type RateLimiter struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// NewRateLimiter creates a limiter that allows one navigation per delay
func NewRateLimiter(delay time.Duration) *RateLimiter {
	r := &RateLimiter{delay: delay}
	if delay > 0 {
		r.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return r
}

// Wait blocks until the next navigation may start
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.limiter == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// SetDelay changes the interval, e.g. to honour a robots.txt crawl-delay
func (r *RateLimiter) SetDelay(delay time.Duration) {
	if delay <= 0 || delay <= r.delay {
		return
	}
	r.delay = delay
	if r.limiter == nil {
		r.limiter = rate.NewLimiter(rate.Every(delay), 1)
		return
	}
	r.limiter.SetLimit(rate.Every(delay))
}

// Delay returns the current interval
func (r *RateLimiter) Delay() time.Duration {
	return r.delay
}
