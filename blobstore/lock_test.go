package blobstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLockerSerializes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "tasks/t1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxInside)
	}
	if len(l.locks) != 0 {
		t.Fatalf("expected lock table to be empty, got %d", len(l.locks))
	}
}

func TestLocalLockerContextCancel(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	other, err := l.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("independent key should not block: %v", err)
	}
	other()
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second)
	l.wait = 50 * time.Millisecond
	l.backoff = 5 * time.Millisecond
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "tasks/t1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("lock:tasks/t1") {
		t.Fatal("expected lock key in redis")
	}

	if _, err := l.Lock(ctx, "tasks/t1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected timeout while held, got %v", err)
	}

	unlock()
	unlock()
	if mr.Exists("lock:tasks/t1") {
		t.Fatal("expected lock key to be released")
	}

	again, err := l.Lock(ctx, "tasks/t1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate expiry and takeover by another instance.
	if err := mr.Set("lock:k", "someone-else"); err != nil {
		t.Fatalf("set: %v", err)
	}
	unlock()
	if v, _ := mr.Get("lock:k"); v != "someone-else" {
		t.Fatalf("foreign lock was released, value=%q", v)
	}
}
