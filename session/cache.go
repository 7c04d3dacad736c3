package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dashVersionKey = "lab:dash:version"

// DashboardCache caches computed dashboard payloads. Invalidate bumps a
// version counter so every older entry is orphaned at once.
type DashboardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDashboardCache(rdb *redis.Client, ttl time.Duration) *DashboardCache {
	return &DashboardCache{rdb: rdb, ttl: ttl}
}

func (c *DashboardCache) key(ctx context.Context, name string) (string, error) {
	v, err := c.rdb.Get(ctx, dashVersionKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("lab:dash:v%d:%s", v, name), nil
}

// Get decodes a cached entry into dst and reports a hit. The returned slot
// is the versioned key read here; pass it to Set so a result computed after
// a miss lands under the version it was computed against.
func (c *DashboardCache) Get(ctx context.Context, name string, dst any) (string, bool) {
	if c == nil {
		return "", false
	}
	k, err := c.key(ctx, name)
	if err != nil {
		return "", false
	}
	b, err := c.rdb.Get(ctx, k).Bytes()
	if err != nil {
		return k, false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		zap.L().Warn("dashboard cache decode failed", zap.String("key", k), zap.Error(err))
		return k, false
	}
	return k, true
}

// Set stores v under a slot returned by Get. An Invalidate in between
// orphans the write instead of serving it as fresh.
func (c *DashboardCache) Set(ctx context.Context, slot string, v any) {
	if c == nil || slot == "" {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, slot, b, c.ttl).Err(); err != nil {
		zap.L().Warn("dashboard cache write failed", zap.String("key", slot), zap.Error(err))
	}
}

func (c *DashboardCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.rdb.Incr(ctx, dashVersionKey).Err(); err != nil {
		zap.L().Error("dashboard cache invalidate failed", zap.Error(err))
	}
}
