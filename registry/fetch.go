// Package registry persists customers, tasks and representatives in the blob store.
package registry

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"sales-portal/blobstore"
)

const defaultFetchConcurrency = 16

// fetchAll loads and decodes every key concurrently. Keys removed between
// listing and loading are skipped. Results keep the order of keys.
func fetchAll[T any](ctx context.Context, store blobstore.Store, keys []string, limit int) ([]T, error) {
	if limit <= 0 {
		limit = defaultFetchConcurrency
	}
	docs := make([]*T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, key := range keys {
		g.Go(func() error {
			var doc T
			if err := blobstore.GetJSON(gctx, store, key, &doc); err != nil {
				if errors.Is(err, blobstore.ErrNotFound) {
					return nil
				}
				return err
			}
			docs[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}
