package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const defaultLocalLimitPerSec = 10

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter is an in-process token bucket per scope. It backs single
// processes such as the CLI that run without Redis.
type LocalRateLimiter struct {
	limitPerSec int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLocalRateLimiter(limitPerSec int) *LocalRateLimiter {
	if limitPerSec <= 0 {
		limitPerSec = defaultLocalLimitPerSec
	}
	return &LocalRateLimiter{
		limitPerSec: limitPerSec,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (l *LocalRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	limiter, err := l.limiter(scope)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, scope string) error {
	limiter, err := l.limiter(scope)
	if err != nil {
		return err
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", scope, err)
	}
	return nil
}

func (l *LocalRateLimiter) limiter(scope string) (*rate.Limiter, error) {
	key := strings.ToLower(strings.TrimSpace(scope))
	if key == "" {
		return nil, fmt.Errorf("rate limit scope is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.limitPerSec), l.limitPerSec)
		l.limiters[key] = limiter
	}
	return limiter, nil
}
