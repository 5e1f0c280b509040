package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Bucket stores documents as objects in an S3-compatible bucket.
type Bucket struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// BucketOptions configures NewBucket. Endpoint and CredentialsFile are optional.
type BucketOptions struct {
	Name            string
	Endpoint        string
	CredentialsFile string
}

// NewBucket opens the named bucket.
func NewBucket(ctx context.Context, o BucketOptions) (*Bucket, error) {
	if o.Name == "" {
		return nil, errors.New("bucket name is required")
	}
	var opts []option.ClientOption
	if o.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.Endpoint))
	}
	if o.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	} else if o.Endpoint != "" {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &Bucket{client: client, bucket: client.Bucket(o.Name)}, nil
}

// Close releases the underlying client.
func (b *Bucket) Close() error {
	return b.client.Close()
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, upstream("get", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, upstream("read", key, err)
	}
	return data, nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json; charset=utf-8"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return upstream("write", key, err)
	}
	if err := w.Close(); err != nil {
		return upstream("finalize", key, err)
	}
	return nil
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	err := b.bucket.Object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return nil
	}
	return upstream("delete", key, err)
}

func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	keys := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, upstream("list", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	sort.Strings(keys)
	return keys, nil
}
