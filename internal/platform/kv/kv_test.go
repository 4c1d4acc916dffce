package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

	require.NoError(t, store.Set(ctx, "trial-balance-data", []byte(`[{"id":"1"}]`)))
	got, err := store.Get(ctx, "trial-balance-data")
	require.NoError(t, err)
	require.Equal(t, `[{"id":"1"}]`, string(got))

	require.NoError(t, store.Set(ctx, "trial-balance-data", []byte(`[]`)))
	got, err = store.Get(ctx, "trial-balance-data")
	require.NoError(t, err)
	require.Equal(t, `[]`, string(got))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, store.Set(context.Background(), "k", value))
	value[0] = 'x'
	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "tb:")
	exerciseStore(t, store)
	require.True(t, mr.Exists("tb:trial-balance-data"), "expected prefixed key in redis")
}
