package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rescale/credvend/internal/logging"
)

// RateLimiter is a token bucket for one scope. It allows bursts up to burst,
// then refills at ratePerSec tokens per second.
type RateLimiter struct {
	scope   Scope
	limiter *rate.Limiter
	logger  *logging.Logger

	mu           sync.Mutex
	lastWarnTime time.Time
}

// NewRateLimiter creates a limiter that starts with a full bucket.
func NewRateLimiter(scope Scope, ratePerSec float64, burst int, logger *logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		scope:   scope,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:  logger,
	}
}

// Wait blocks until a token is available or ctx is done. A wait that would
// outlast ctx's deadline fails immediately instead of sleeping first.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()

	r := rl.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("%s rate limiter cannot grant a token", rl.scope)
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		r.Cancel()
		return context.DeadlineExceeded
	}

	if delay > SlowWaitThreshold {
		rl.mu.Lock()
		if time.Since(rl.lastWarnTime) > WarnInterval {
			rl.logger.Warn().
				Str("scope", string(rl.scope)).
				Dur("wait", delay).
				Msg("Rate limited: waiting for provider capacity")
			rl.lastWarnTime = time.Now()
		}
		rl.mu.Unlock()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
	}

	if waited := time.Since(start); waited > SlowWaitThreshold {
		rl.logger.Debug().Str("scope", string(rl.scope)).Dur("waited", waited).Msg("Rate limit wait completed")
	}
	return nil
}
