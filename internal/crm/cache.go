package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MetricsCache keeps computed performance metrics in redis so repeated
// reads skip the aggregate query. A nil cache is valid and caches
// nothing, which keeps redis optional in deployments.
type MetricsCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewMetricsCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *MetricsCache {
	if rdb == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MetricsCache{rdb: rdb, ttl: ttl, log: log}
}

func metricKey(restaurantID string, start, end time.Time) string {
	return fmt.Sprintf("perf:%s:%d:%d", restaurantID, start.Unix(), end.Unix())
}

// Get returns the cached metric or nil on miss. Cache failures degrade
// to a miss; the database stays authoritative.
func (c *MetricsCache) Get(ctx context.Context, restaurantID string, start, end time.Time) *PerformanceMetric {
	if c == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, metricKey(restaurantID, start, end)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("metrics cache read", zap.Error(err))
		}
		return nil
	}
	var m PerformanceMetric
	if err := json.Unmarshal(raw, &m); err != nil {
		c.log.Warn("metrics cache decode", zap.Error(err))
		return nil
	}
	return &m
}

func (c *MetricsCache) Put(ctx context.Context, m *PerformanceMetric) {
	if c == nil || m == nil {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, metricKey(m.RestaurantID, m.PeriodStart, m.PeriodEnd), raw, c.ttl).Err(); err != nil {
		c.log.Warn("metrics cache write", zap.Error(err))
	}
}

// Invalidate drops every cached period for a restaurant. Called after
// writes that change the underlying order history.
func (c *MetricsCache) Invalidate(ctx context.Context, restaurantID string) {
	if c == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("perf:%s:*", restaurantID), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("metrics cache invalidate", zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("metrics cache scan", zap.Error(err))
	}
}
