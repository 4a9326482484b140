package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter считает запросы в фиксированном окне на INCR + EXPIRE NX.
type RateLimiter struct {
	c      *redis.Client
	prefix string
	shared bool
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c:      redis.NewClient(&redis.Options{Addr: addr}),
		prefix: defaultPrefix,
	}
}

// Allow считает запрос в окне ключа. TTL ставится только при создании ключа,
// поэтому окно не сдвигается от запроса к запросу. retryAfter показывает, сколько
// осталось до конца текущего окна.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, time.Duration, error) {
	k := rl.prefix + key

	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}

	retryAfter := pttl.Val()
	if retryAfter <= 0 || retryAfter > window {
		retryAfter = window
	}
	return incr.Val() <= limit, retryAfter, nil
}

func (rl *RateLimiter) Close() error {
	if rl.shared {
		return nil
	}
	return rl.c.Close()
}
