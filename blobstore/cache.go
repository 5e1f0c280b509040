package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Store with Redis-backed caching for Get.
type Cache struct {
	base  Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("blobstore.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// fillScript caches a value only if no eviction happened since the reader
// sampled the key's generation.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '' end
if gen ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := c.load(ctx, key); ok {
		return data, nil
	}
	gen, genOK := c.generation(ctx, key)
	data, err := c.base.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if genOK {
		c.store(ctx, key, gen, data)
	}
	return data, nil
}

// Base returns the wrapped store.
func (c *Cache) Base() Store {
	return c.base
}

func (c *Cache) Put(ctx context.Context, key string, data []byte) error {
	c.evict(ctx, key)
	if err := c.base.Put(ctx, key, data); err != nil {
		return err
	}
	c.evict(ctx, key)
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.base.Delete(ctx, key); err != nil {
		return err
	}
	c.evict(ctx, key)
	return nil
}

// List is not cached: listings change whenever any key in the collection does.
func (c *Cache) List(ctx context.Context, prefix string) ([]string, error) {
	return c.base.List(ctx, prefix)
}

func (c *Cache) load(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, cacheKey(key)).Err()
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) generation(ctx context.Context, key string) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, genKey(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false
	}
	return gen, true
}

func (c *Cache) store(ctx context.Context, key, gen string, data []byte) {
	keys := []string{cacheKey(key), genKey(key)}
	_ = fillScript.Run(ctx, c.redis, keys, data, gen, c.ttl.Milliseconds()).Err()
}

// evict drops the cached value and bumps the key's generation so fills
// started before the eviction are discarded.
func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(key))
		pipe.Incr(ctx, genKey(key))
		pipe.Expire(ctx, genKey(key), c.genTTL())
		return nil
	})
}

func (c *Cache) genTTL() time.Duration {
	if c.ttl < time.Hour {
		return time.Hour
	}
	return 2 * c.ttl
}

func cacheKey(key string) string {
	return "blob:" + key
}

func genKey(key string) string {
	return "blobgen:" + key
}
