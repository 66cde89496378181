package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ReadThrough, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReadThrough(client, "bills", time.Minute), mr
}

func TestFetchJSONPopulatesOnMiss(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"BILL-1", "BILL-2"}, nil
	}

	var got []string
	require.NoError(t, c.FetchJSON(ctx, c.Key(7, "POSTED"), &got, loader))
	require.Equal(t, []string{"BILL-1", "BILL-2"}, got)
	require.Equal(t, 1, calls)

	got = nil
	require.NoError(t, c.FetchJSON(ctx, c.Key(7, "POSTED"), &got, loader))
	require.Equal(t, []string{"BILL-1", "BILL-2"}, got)
	require.Equal(t, 1, calls, "second fetch must hit the cache")
}

func TestInvalidateDropsOrgKeysOnly(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	loader := func(context.Context) (any, error) { return []string{"x"}, nil }
	var got []string
	require.NoError(t, c.FetchJSON(ctx, c.Key(7, "POSTED"), &got, loader))
	require.NoError(t, c.FetchJSON(ctx, c.Key(8, "POSTED"), &got, loader))

	require.NoError(t, c.Invalidate(ctx, 7))

	calls := 0
	counting := func(context.Context) (any, error) {
		calls++
		return []string{"x"}, nil
	}
	require.NoError(t, c.FetchJSON(ctx, c.Key(7, "POSTED"), &got, counting))
	require.Equal(t, 1, calls, "org 7 key was invalidated")
	require.NoError(t, c.FetchJSON(ctx, c.Key(8, "POSTED"), &got, counting))
	require.Equal(t, 1, calls, "org 8 key survived")
}

func TestFetchJSONWithoutClientFallsBackToLoader(t *testing.T) {
	c := NewReadThrough(nil, "bills", time.Minute)
	var got []string
	err := c.FetchJSON(context.Background(), "bills:1:POSTED", &got, func(context.Context) (any, error) {
		return []string{"only"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"only"}, got)
}
