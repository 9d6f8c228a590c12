// Package cache holds the Redis-backed availability cache for the public
// browse endpoints. Seat counts change on every reservation and release,
// so the cache is invalidated explicitly at those points rather than
// relying on TTL expiry alone; the short TTL only bounds staleness when
// an invalidation is lost.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const availabilityTTL = 30 * time.Second

// Availability caches per-performance available-seat counts. A nil
// receiver or nil client disables caching entirely; every lookup misses.
type Availability struct {
	rdb *redis.Client
}

// NewAvailability returns an availability cache over the given client,
// which may be nil.
func NewAvailability(rdb *redis.Client) *Availability {
	return &Availability{rdb: rdb}
}

func availabilityKey(performanceID uint64) string {
	return fmt.Sprintf("perf:avail:%d", performanceID)
}

// Get returns the cached count and whether it was present.
func (a *Availability) Get(ctx context.Context, performanceID uint64) (int, bool) {
	if a == nil || a.rdb == nil {
		return 0, false
	}
	v, err := a.rdb.Get(ctx, availabilityKey(performanceID)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set stores the count with the staleness-bounding TTL.
func (a *Availability) Set(ctx context.Context, performanceID uint64, available int) {
	if a == nil || a.rdb == nil {
		return
	}
	a.rdb.Set(ctx, availabilityKey(performanceID), available, availabilityTTL)
}

// Invalidate drops the cached counts for the given performances. Called
// after every committed reservation or release.
func (a *Availability) Invalidate(ctx context.Context, performanceIDs ...uint64) {
	if a == nil || a.rdb == nil || len(performanceIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(performanceIDs))
	for _, id := range performanceIDs {
		keys = append(keys, availabilityKey(id))
	}
	a.rdb.Del(ctx, keys...)
}
