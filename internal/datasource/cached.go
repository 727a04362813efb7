package datasource

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cached wraps a Datasource with a result cache. Cache failures never fail a
// query; they fall through to the backend.
type Cached struct {
	Datasource

	cache  Cache
	group  singleflight.Group
	logger *zap.Logger
}

// NewCached decorates ds with cache.
func NewCached(ds Datasource, cache Cache, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		Datasource: ds,
		cache:      cache,
		logger:     logger.With(zap.String("component", "datasource-cache"), zap.String("datasource", ds.Name())),
	}
}

type cachedValue struct {
	Value float64 `json:"value"`
}

// StatisticAggregation serves from cache when possible. Concurrent misses for
// the same key share a single backend query.
func (c *Cached) StatisticAggregation(ctx context.Context, q Query) (float64, error) {
	key := cacheKey(c.Datasource.Name(), q)

	var hit cachedValue
	ok, err := c.cache.Get(ctx, key, &hit)
	if err != nil {
		c.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		return hit.Value, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		val, err := c.Datasource.StatisticAggregation(ctx, q)
		if err != nil {
			return 0.0, err
		}
		if err := c.cache.Set(ctx, key, cachedValue{Value: val}); err != nil {
			c.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return val, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// cacheKey builds a filesystem- and redis-safe key for q.
func cacheKey(backend string, q Query) string {
	raw := fmt.Sprintf("%s_%s_%s_%s_%s_%s",
		backend, q.Meter, q.Aggregation,
		seconds(q.Period), seconds(q.Granularity), q.ResourceID)
	if len(q.Dimensions) > 0 {
		dims := make([]string, 0, len(q.Dimensions))
		for k, v := range q.Dimensions {
			dims = append(dims, k+"-"+v)
		}
		sort.Strings(dims)
		raw += "_" + strings.Join(dims, "_")
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, raw)
}

// seconds renders d without truncating sub-second precision.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
