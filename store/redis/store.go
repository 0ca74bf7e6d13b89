// Package redis implements store.Store on Redis.
//
// Events are JSON documents indexed by creation time in sorted sets, one
// for all events and one per event type. Reads fetch the candidate window
// from an index and reduce it in process.
package redis

import (
	"context"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/beacon"
	beaconstore "github.com/xraph/beacon/store"
)

// compile-time interface check
var _ beaconstore.Store = (*Store)(nil)

// mgetBatch bounds the number of keys fetched per MGET.
const mgetBatch = 500

// Store implements store.Store using Redis.
type Store struct {
	rdb    goredis.UniversalClient
	closed atomic.Bool
}

// New creates a new Redis store.
func New(rdb goredis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Migrate is a no-op for Redis (no schema migrations needed).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return beacon.ErrStoreClosed
	}
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rdb.Close()
}

// scoreFromTime converts a time.Time to a sorted set score (unix seconds as float64).
func scoreFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// zRangeByScoreIDs returns all members of a sorted set within a score range.
func (s *Store) zRangeByScoreIDs(ctx context.Context, key string, lo, hi float64) ([]string, error) {
	minStr := "-inf"
	maxStr := "+inf"
	if !math.IsInf(lo, -1) {
		minStr = strconv.FormatFloat(lo, 'f', -1, 64)
	}
	if !math.IsInf(hi, 1) {
		maxStr = strconv.FormatFloat(hi, 'f', -1, 64)
	}
	return s.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: minStr,
		Max: maxStr,
	}).Result()
}
