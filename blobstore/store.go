// Package blobstore is a small key/value layer over object or table storage.
// Values are UTF-8 JSON documents stored under "{collection}/{id}.json".
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"sales-portal/domain"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = fmt.Errorf("blob %w", domain.ErrNotFound)

// Store abstracts the persistence backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}

const suffix = ".json"

// Key builds the storage key for id inside collection.
func Key(collection, id string) string {
	return collection + "/" + url.PathEscape(id) + suffix
}

// Prefix returns the List prefix for collection.
func Prefix(collection string) string {
	return collection + "/"
}

// ID extracts the unescaped id from a key produced by Key.
func ID(key string) (string, bool) {
	i := strings.Index(key, "/")
	if i < 0 || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	id, err := url.PathUnescape(strings.TrimSuffix(key[i+1:], suffix))
	if err != nil {
		return "", false
	}
	return id, true
}

// Direct returns the store beneath any caching layer. Read-modify-write
// paths read through it so they never act on a cached copy.
func Direct(s Store) Store {
	if c, ok := s.(interface{ Base() Store }); ok {
		return c.Base()
	}
	return s
}

// GetJSON loads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// upstream tags backend failures so callers can tell them apart from
// missing keys or bad input.
func upstream(op, key string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: blob %s %s: %w", domain.ErrUpstream, op, key, err)
}
