package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDel(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	_, ok, err := c.Get(ctx, "scan:1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "scan:1", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "scan:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	require.NoError(t, c.Del(ctx, "scan:1"))
	_, ok, err = c.Get(ctx, "scan:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis get")
}

func TestRedisCache_Prefix(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "scan:1", []byte("v"), time.Minute))
	require.True(t, mr.Exists("scanbox:scan:1"))

	other := New(mr.Addr()).WithPrefix("dock:")
	_, ok, err := other.Get(ctx, "scan:1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Ping(ctx))
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())
	t.Cleanup(func() { _ = rl.Close() })

	ctx := context.Background()
	ok, _, err := rl.Allow(ctx, "rl:station-1", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, _ = rl.Allow(ctx, "rl:station-1", 2, time.Minute)
	require.True(t, ok)

	ok, retryAfter, err := rl.Allow(ctx, "rl:station-1", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, retryAfter, time.Duration(0))
	require.LessOrEqual(t, retryAfter, time.Minute)

	// другая станция считается отдельно
	ok, _, _ = rl.Allow(ctx, "rl:station-2", 2, time.Minute)
	require.True(t, ok)

	// окно не продлевается запросами внутри него
	mr.FastForward(40 * time.Second)
	_, retryAfter, _ = rl.Allow(ctx, "rl:station-1", 2, time.Minute)
	require.LessOrEqual(t, retryAfter, 20*time.Second)

	// окно истекло
	mr.FastForward(21 * time.Second)
	ok, _, _ = rl.Allow(ctx, "rl:station-1", 2, time.Minute)
	require.True(t, ok)
}

func TestRateLimiter_SharedWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	rl := c.Limiter()
	ok, _, err := rl.Allow(context.Background(), "rl:submit:dock-1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("scanbox:rl:submit:dock-1"))

	// закрытие общего лимитера не закрывает пул кэша
	require.NoError(t, rl.Close())
	require.NoError(t, c.Ping(context.Background()))
}
