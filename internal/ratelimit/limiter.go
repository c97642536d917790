package ratelimit

import "context"

// RateLimiter throttles calls per scope, e.g. one upstream API.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
