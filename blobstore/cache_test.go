package blobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingStore struct {
	*Memory
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.gets++
	return c.Memory.Get(ctx, key)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheGetMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	base := &countingStore{Memory: NewMemory()}
	_ = base.Memory.Put(ctx, "tasks/t1.json", []byte(`{"taskId":"t1"}`))

	cache := NewCache(base, client, time.Minute)

	data, err := cache.Get(ctx, "tasks/t1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `{"taskId":"t1"}` {
		t.Fatalf("unexpected data %s", data)
	}
	if ttl := mr.TTL(cacheKey("tasks/t1.json")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	if _, err := cache.Get(ctx, "tasks/t1.json"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if base.gets != 1 {
		t.Fatalf("expected cached get to avoid backend, gets=%d", base.gets)
	}
}

func TestCachePutAndDeleteEvict(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	base := &countingStore{Memory: NewMemory()}
	cache := NewCache(base, client, time.Minute)

	if err := cache.Put(ctx, "tasks/t1.json", []byte(`1`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := cache.Get(ctx, "tasks/t1.json"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !mr.Exists(cacheKey("tasks/t1.json")) {
		t.Fatal("expected value to be cached")
	}

	if err := cache.Put(ctx, "tasks/t1.json", []byte(`2`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if mr.Exists(cacheKey("tasks/t1.json")) {
		t.Fatal("expected put to evict cached value")
	}
	data, _ := cache.Get(ctx, "tasks/t1.json")
	if string(data) != "2" {
		t.Fatalf("expected fresh value, got %s", data)
	}

	if err := cache.Delete(ctx, "tasks/t1.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.Get(ctx, "tasks/t1.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	base := &countingStore{Memory: NewMemory()}
	_ = base.Memory.Put(ctx, "users/a.json", []byte(`{}`))
	cache := NewCache(base, client, time.Minute)

	mr.Close()

	if _, err := cache.Get(ctx, "users/a.json"); err != nil {
		t.Fatalf("expected backend fallback, got %v", err)
	}
}

func TestCacheWithoutRedis(t *testing.T) {
	ctx := context.Background()
	base := &countingStore{Memory: NewMemory()}
	_ = base.Memory.Put(ctx, "users/a.json", []byte(`{}`))
	cache := NewCache(base, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.Get(ctx, "users/a.json"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if base.gets != 2 {
		t.Fatalf("expected every get to reach the backend, gets=%d", base.gets)
	}
}

// pausingStore blocks Get after reading from the backend until release is closed.
type pausingStore struct {
	*Memory
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := p.Memory.Get(ctx, key)
	close(p.read)
	<-p.release
	return data, err
}

func TestCacheFillDoesNotOverwriteNewerWrite(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	base := &pausingStore{Memory: NewMemory(), read: make(chan struct{}), release: make(chan struct{})}
	_ = base.Memory.Put(ctx, "tasks/t1.json", []byte(`v1`))
	cache := NewCache(base, client, time.Minute)

	done := make(chan []byte)
	go func() {
		data, _ := cache.Get(ctx, "tasks/t1.json")
		done <- data
	}()
	<-base.read
	if err := cache.Put(ctx, "tasks/t1.json", []byte(`v2`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	close(base.release)
	if data := <-done; string(data) != "v1" {
		t.Fatalf("expected the in-flight read to return v1, got %s", data)
	}

	if mr.Exists(cacheKey("tasks/t1.json")) {
		t.Fatal("stale fill must not be cached after a newer write")
	}
	got, err := base.Memory.Get(ctx, "tasks/t1.json")
	if err != nil || string(got) != "v2" {
		t.Fatalf("unexpected backend value %s %v", got, err)
	}
}

func TestDirectBypassesCache(t *testing.T) {
	_, client := newTestRedis(t)
	base := NewMemory()
	cache := NewCache(base, client, time.Minute)
	if Direct(cache) != Store(base) {
		t.Fatal("expected Direct to unwrap the cache")
	}
	if Direct(base) != Store(base) {
		t.Fatal("expected Direct to return an uncached store unchanged")
	}
}
