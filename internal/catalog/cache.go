package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Lookup resolves product ids in bulk. Unknown ids are silently omitted.
type Lookup interface {
	FindByIDs(ctx context.Context, ids []int64) (map[int64]Product, error)
}

// Cache wraps Redis helpers for JSON encoded products.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper. A nil client or non-positive ttl disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: "catalog:product:"}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func (c *Cache) key(id int64) string {
	return c.prefix + strconv.FormatInt(id, 10)
}

// GetMany returns the cached products among ids. Missing or undecodable entries are skipped.
func (c *Cache) GetMany(ctx context.Context, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	if !c.enabled() || len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return out, err
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p Product
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out[ids[i]] = p
	}
	return out, nil
}

// SetMany stores products with the configured TTL in a single pipeline.
func (c *Cache) SetMany(ctx context.Context, products map[int64]Product) error {
	if !c.enabled() || len(products) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for id, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.Set(ctx, c.key(id), data, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// CachedLookup serves FindByIDs from Redis and falls back to the source for misses.
// Only products that exist are cached, so deleted products disappear once their entry expires.
type CachedLookup struct {
	Source Lookup
	Cache  *Cache
	Logger zerolog.Logger
}

// FindByIDs implements Lookup.
func (l CachedLookup) FindByIDs(ctx context.Context, ids []int64) (map[int64]Product, error) {
	hits, err := l.Cache.GetMany(ctx, ids)
	if err != nil {
		l.Logger.Warn().Err(err).Msg("catalog cache read")
		hits = map[int64]Product{}
	}
	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := hits[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return hits, nil
	}
	found, err := l.Source.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	if err := l.Cache.SetMany(ctx, found); err != nil {
		l.Logger.Warn().Err(err).Msg("catalog cache write")
	}
	for id, p := range found {
		hits[id] = p
	}
	return hits, nil
}

// Invalidate drops every cached product.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
