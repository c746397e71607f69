// Package ratelimit implements a fixed-window per-client request limiter on
// Redis, shared across API replicas.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts requests per key inside a rolling fixed window.
type Limiter struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
	max    int
}

// New constructs a Limiter. prefix namespaces the counters so independent
// limiters (submissions vs. reads) can share one Redis.
func New(rdb *redis.Client, prefix string, window time.Duration, max int) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, window: window, max: max}
}

// Allow records one request for key and reports whether it fits the window.
// The second return is how long the caller should wait before retrying when
// the limit is exhausted.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	counter := fmt.Sprintf("%s:%s", l.prefix, key)
	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, counter)
	// NX keeps the window anchored at the first request rather than
	// sliding on every hit.
	pipe.ExpireNX(ctx, counter, l.window)
	ttl := pipe.TTL(ctx, counter)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}
	if int(count.Val()) > l.max {
		retry := ttl.Val()
		if retry < 0 {
			retry = l.window
		}
		return false, retry, nil
	}
	return true, 0, nil
}
