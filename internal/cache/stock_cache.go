// Package cache provides the narrow available_stock read cache fronting
// GET /products/{id}. It narrows middleware/cache.go's whole-response Redis
// idiom down to a single integer, and adds a singleflight layer so a burst
// of cache misses for the same product collapses into one database read.
package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/0x377/flashsale-core/internal/config"
)

// StockCache caches a product's available_stock under a short TTL. The
// reservation engine invalidates the entry on every successful reserve or
// release so reads only fall back to the TTL during cache or engine
// failures, never during steady-state operation.
type StockCache struct {
	rdb   *redis.Client
	cfg   config.StockCacheConfig
	group singleflight.Group
}

// NewStockCache constructs a StockCache. A nil rdb disables caching: Get
// always misses and Put/Invalidate are no-ops, so the engine degrades to
// reading the database directly.
func NewStockCache(rdb *redis.Client, cfg config.StockCacheConfig) *StockCache {
	return &StockCache{rdb: rdb, cfg: cfg}
}

func (c *StockCache) key(productID uint64) string {
	return fmt.Sprintf("%s:%d", c.cfg.Prefix, productID)
}

// Get returns the cached available_stock for a product, and ok=false on a
// miss or when caching is disabled.
func (c *StockCache) Get(ctx context.Context, productID uint64) (available uint32, ok bool) {
	if c.rdb == nil {
		return 0, false
	}
	s, err := c.rdb.Get(ctx, c.key(productID)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Put stores the given available_stock under the configured TTL.
func (c *StockCache) Put(ctx context.Context, productID uint64, available uint32) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Set(ctx, c.key(productID), strconv.FormatUint(uint64(available), 10), c.cfg.TTL).Err()
}

// Invalidate removes the cached entry, called after any committed
// reservation or release so the next read observes fresh stock.
func (c *StockCache) Invalidate(ctx context.Context, productID uint64) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, c.key(productID)).Err()
}

// GetOrLoad returns the cached available_stock, loading it via fn on a miss.
// Concurrent misses for the same productID collapse into a single call to
// fn, the same collapsing behavior as the singleflight-wrapped loaders in
// the rest of the sale-day read path.
func (c *StockCache) GetOrLoad(ctx context.Context, productID uint64, fn func(context.Context) (uint32, error)) (uint32, error) {
	if v, ok := c.Get(ctx, productID); ok {
		return v, nil
	}
	key := strconv.FormatUint(productID, 10)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		loaded, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(ctx, productID, loaded)
		return loaded, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint32), nil
}
