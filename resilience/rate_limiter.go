package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures a token bucket.
type RateLimiterConfig struct {
	Name string
	// Rate is tokens per second. Defaults to 10.
	Rate float64
	// Burst is the bucket size. Defaults to max(1, Rate).
	Burst int
}

// RateLimiter paces sink writes at one token per item.
type RateLimiter struct {
	name string
	lim  *rate.Limiter
}

// NewRateLimiter returns a limiter whose bucket starts full.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = max(1, int(config.Rate))
	}
	return &RateLimiter{name: config.Name, lim: rate.NewLimiter(rate.Limit(config.Rate), config.Burst)}
}

// Allow takes n tokens if the bucket holds them now.
func (rl *RateLimiter) Allow(n int) bool {
	return rl.lim.AllowN(time.Now(), n)
}

// Wait takes n tokens, blocking until they are available or ctx is done.
// A batch larger than the burst is paid for one burst at a time.
func (rl *RateLimiter) Wait(ctx context.Context, n int) error {
	burst := rl.lim.Burst()
	for n > 0 {
		take := min(n, burst)
		if err := rl.lim.WaitN(ctx, take); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		n -= take
	}
	return nil
}

// Rate returns the refill rate in tokens per second.
func (rl *RateLimiter) Rate() float64 {
	return float64(rl.lim.Limit())
}

// Name identifies the limiter in logs.
func (rl *RateLimiter) Name() string { return rl.name }
