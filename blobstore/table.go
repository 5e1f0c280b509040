package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"sales-portal/domain"
)

// Table string properties hold at most 64 KiB of UTF-16, so documents are
// spread over several properties of at most chunkSize bytes each. A chunk
// never takes more UTF-16 bytes than twice its UTF-8 length, so maxChunks
// keeps the entity under the 1 MiB limit.
const (
	chunkSize = 32 * 1024
	maxChunks = 15
)

var errDocumentTooLarge = fmt.Errorf("%w: document exceeds table entity size", domain.ErrValidation)

// Table stores documents in Azure Table storage. The collection becomes the
// PartitionKey and the escaped id the RowKey.
type Table struct {
	client *aztables.Client
}

// NewTable creates a Table store from a storage connection string.
func NewTable(connStr, table string) (*Table, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Table{client: svc.NewClient(table)}, nil
}

// EnsureTable creates the backing table when it does not exist yet.
func (t *Table) EnsureTable(ctx context.Context) error {
	_, err := t.client.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return err
		}
	}
	return nil
}

func (t *Table) Get(ctx context.Context, key string) ([]byte, error) {
	pk, rk, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, ErrNotFound
		}
		return nil, upstream("get", key, err)
	}
	data, err := decodeEntity(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", key, err)
	}
	return data, nil
}

func (t *Table) Put(ctx context.Context, key string, data []byte) error {
	pk, rk, err := splitKey(key)
	if err != nil {
		return err
	}
	payload, err := encodeEntity(pk, rk, data)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	// Replace drops properties left over from a previous, larger document.
	_, err = t.client.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return upstream("put", key, err)
}

func (t *Table) Delete(ctx context.Context, key string) error {
	pk, rk, err := splitKey(key)
	if err != nil {
		return err
	}
	if _, err := t.client.DeleteEntity(ctx, pk, rk, nil); err != nil && !isStatus(err, http.StatusNotFound) {
		return upstream("delete", key, err)
	}
	return nil
}

func (t *Table) List(ctx context.Context, prefix string) ([]string, error) {
	collection, rest, _ := strings.Cut(prefix, "/")
	filter := "PartitionKey eq '" + strings.ReplaceAll(collection, "'", "''") + "'"
	sel := "PartitionKey,RowKey"
	pager := t.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel})
	keys := []string{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, upstream("list", prefix, err)
		}
		for _, raw := range resp.Entities {
			var ent aztables.Entity
			if err := sonic.Unmarshal(raw, &ent); err != nil {
				return nil, fmt.Errorf("decode entity keys: %w", err)
			}
			if strings.HasPrefix(ent.RowKey, rest) {
				keys = append(keys, ent.PartitionKey+"/"+ent.RowKey)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func splitKey(key string) (string, string, error) {
	pk, rk, ok := strings.Cut(key, "/")
	if !ok || pk == "" || rk == "" || strings.ContainsAny(rk, "/\\#?") {
		return "", "", fmt.Errorf("invalid blob key %q", key)
	}
	return pk, rk, nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func chunkProperty(i int) string {
	if i == 0 {
		return "Data"
	}
	return "Data" + strconv.Itoa(i)
}

func encodeEntity(pk, rk string, data []byte) ([]byte, error) {
	chunks := splitChunks(string(data))
	if len(chunks) > maxChunks {
		return nil, errDocumentTooLarge
	}
	ent := map[string]any{
		"PartitionKey": pk,
		"RowKey":       rk,
		"Chunks":       len(chunks),
	}
	for i, c := range chunks {
		ent[chunkProperty(i)] = c
	}
	return sonic.Marshal(ent)
}

func decodeEntity(raw []byte) ([]byte, error) {
	var ent map[string]any
	if err := sonic.Unmarshal(raw, &ent); err != nil {
		return nil, err
	}
	n := 1
	if v, ok := ent["Chunks"].(float64); ok && v > 0 {
		n = int(v)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		s, ok := ent[chunkProperty(i)].(string)
		if !ok {
			return nil, fmt.Errorf("missing property %s", chunkProperty(i))
		}
		b.WriteString(s)
	}
	return []byte(b.String()), nil
}

// splitChunks cuts s into pieces of at most chunkSize bytes without
// splitting a multi-byte rune.
func splitChunks(s string) []string {
	if len(s) <= chunkSize {
		return []string{s}
	}
	var out []string
	for len(s) > chunkSize {
		cut := chunkSize
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
