package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-portal/domain"
)

func sampleDraft() *Draft {
	d := NewDraft()
	d.Stage = StageDraftingContent
	d.Category = "Electronics"
	d.Customers = []domain.CustomerRef{{ID: "1", Name: "A", Category: "Electronics"}}
	d.Title = "Spring"
	d.ScriptEdited = true
	d.Script = "Hi"
	return d
}

func TestRedisDraftStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisDraftStore(client, time.Hour)

	fresh, err := store.Load(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StageSelectingCategory, fresh.Stage)

	require.NoError(t, store.Save(ctx, "admin-1", sampleDraft()))
	assert.True(t, mr.Exists("workflow:draft:admin-1"))
	assert.Equal(t, time.Hour, mr.TTL("workflow:draft:admin-1"))

	got, err := store.Load(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, sampleDraft(), got)

	other, err := store.Load(ctx, "admin-2")
	require.NoError(t, err)
	assert.Empty(t, other.Category)

	mr.FastForward(2 * time.Hour)
	expired, err := store.Load(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StageSelectingCategory, expired.Stage)

	require.NoError(t, store.Save(ctx, "admin-1", sampleDraft()))
	require.NoError(t, store.Delete(ctx, "admin-1"))
	assert.False(t, mr.Exists("workflow:draft:admin-1"))
}

func TestRedisDraftStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err = NewRedisDraftStore(client, time.Minute).Load(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestMemoryDraftStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDraftStore()
	d := sampleDraft()
	require.NoError(t, store.Save(ctx, "u", d))

	d.Customers[0].Name = "mutated"
	got, err := store.Load(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Customers[0].Name)

	require.NoError(t, store.Delete(ctx, "u"))
	got, err = store.Load(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, got.Customers)
}
