package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour)
	store.now = func() time.Time { return now }

	ok, err := store.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok, "first reservation")

	ok, _ = store.Reserve(ctx, "k1")
	assert.False(t, ok, "duplicate reservation")

	ok, _ = store.Reserve(ctx, "k2")
	assert.True(t, ok, "other key")

	require.NoError(t, store.Release(ctx, "k1"))
	ok, _ = store.Reserve(ctx, "k1")
	assert.True(t, ok, "released key")

	now = now.Add(2 * time.Hour)
	ok, _ = store.Reserve(ctx, "k2")
	assert.True(t, ok, "expired key")
}

func TestMemoryStore_sweep(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	now := start
	store := NewMemoryStore(time.Hour)
	store.now = func() time.Time { return now }

	for _, key := range []string{"a", "b"} {
		ok, err := store.Reserve(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
	}
	now = start.Add(30 * time.Minute)
	_, _ = store.Reserve(ctx, "c")
	assert.Len(t, store.keys, 3)

	now = start.Add(61 * time.Minute)
	_, _ = store.Reserve(ctx, "d")
	assert.Len(t, store.keys, 2, "expired keys are dropped")
	assert.Contains(t, store.keys, "c")
	assert.Contains(t, store.keys, "d")
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig()
	store, err := New(conf)
	require.NoError(t, err)
	assert.IsType(t, &memoryStore{}, store)

	conf.Redis.URL = "not a url"
	_, err = New(conf)
	assert.Error(t, err)
}

func TestRedisStore_keys(t *testing.T) {
	// no server: commands fail, but the store must surface the error
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	store := NewRedisStoreWithClient(client, time.Minute)
	defer store.Close()

	_, err := store.Reserve(context.Background(), "k1")
	assert.Error(t, err)
	assert.Error(t, store.Release(context.Background(), "k1"))
}
