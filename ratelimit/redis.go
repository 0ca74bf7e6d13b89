package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces limiter keys.
const DefaultRedisPrefix = "beacon:rl:"

// Redis implements the same fixed window over Redis so several collector
// processes share counters. INCR is atomic, so concurrent hits are never lost.
type Redis struct {
	rdb    goredis.UniversalClient
	limit  int64
	period time.Duration
	prefix string
}

// NewRedis creates a Redis-backed limiter. Non-positive arguments fall back
// to DefaultLimit and DefaultWindow.
func NewRedis(rdb goredis.UniversalClient, limit int, period time.Duration) *Redis {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if period <= 0 {
		period = DefaultWindow
	}
	return &Redis{
		rdb:    rdb,
		limit:  int64(limit),
		period: period,
		prefix: DefaultRedisPrefix,
	}
}

// Admit counts a hit for key and reports whether it fits in the window.
// The increment and the expiry run in one MULTI, and EXPIRE NX only sets a
// TTL on a key that has none, so a counter can never outlive its window.
func (r *Redis) Admit(ctx context.Context, key string) (bool, error) {
	k := r.prefix + key

	var incr *goredis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, r.period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("beacon/ratelimit: admit: %w", err)
	}
	return incr.Val() <= r.limit, nil
}

// Reset clears the window for a key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}
