package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"sales-portal/domain"
)

// DraftStore keeps one draft per admin between requests.
type DraftStore interface {
	// Load returns the saved draft or a fresh one when none exists.
	Load(ctx context.Context, userID string) (*Draft, error)
	Save(ctx context.Context, userID string, d *Draft) error
	Delete(ctx context.Context, userID string) error
}

const draftKeyPrefix = "workflow:draft:"

// RedisDraftStore stores drafts as JSON with a sliding TTL.
type RedisDraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDraftStore(client *redis.Client, ttl time.Duration) *RedisDraftStore {
	return &RedisDraftStore{client: client, ttl: ttl}
}

func (s *RedisDraftStore) Load(ctx context.Context, userID string) (*Draft, error) {
	data, err := s.client.Get(ctx, draftKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewDraft(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load draft: %w", domain.ErrUpstream, err)
	}
	d := NewDraft()
	if err := sonic.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decode draft for %s: %w", userID, err)
	}
	return d, nil
}

func (s *RedisDraftStore) Save(ctx context.Context, userID string, d *Draft) error {
	data, err := sonic.Marshal(d)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, draftKeyPrefix+userID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: save draft: %w", domain.ErrUpstream, err)
	}
	return nil
}

func (s *RedisDraftStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, draftKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("%w: delete draft: %w", domain.ErrUpstream, err)
	}
	return nil
}

// MemoryDraftStore is the single-process DraftStore.
type MemoryDraftStore struct {
	mu     sync.Mutex
	drafts map[string]Draft
}

func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: make(map[string]Draft)}
}

func (s *MemoryDraftStore) Load(_ context.Context, userID string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[userID]
	if !ok {
		return NewDraft(), nil
	}
	c := d.clone()
	return &c, nil
}

func (s *MemoryDraftStore) Save(_ context.Context, userID string, d *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[userID] = d.clone()
	return nil
}

func (s *MemoryDraftStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
	return nil
}
