package repository

import (
	"context"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/common/cache"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

const runLimitKeyPrefix = "judge:ratelimit:run:"

// RunLimiter enforces a fixed-window limit on ungraded runs per user.
type RunLimiter struct {
	cache        cache.BasicOps
	max          int
	window       time.Duration
	redisTimeout time.Duration
}

// NewRunLimiter creates a limiter allowing max runs per window. max <= 0 disables it.
func NewRunLimiter(cacheClient cache.BasicOps, max int, window, redisTimeout time.Duration) *RunLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if redisTimeout <= 0 {
		redisTimeout = 200 * time.Millisecond
	}
	return &RunLimiter{cache: cacheClient, max: max, window: window, redisTimeout: redisTimeout}
}

// Allow returns TooManyRequests once the caller exceeds the window budget.
func (l *RunLimiter) Allow(ctx context.Context, userID string) error {
	if l == nil || l.max <= 0 || userID == "" {
		return nil
	}
	if l.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	key := runLimitKeyPrefix + userID

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, l.window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	var count int64
	if acquired {
		count = 1
	} else {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		ttl, ttlErr := l.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, l.window)
		}
	}
	if int(count) > l.max {
		return appErr.New(appErr.TooManyRequests).WithMessagef("run limit of %d per %s exceeded", l.max, l.window)
	}
	return nil
}
