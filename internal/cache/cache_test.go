package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRemote(t *testing.T) (*RedisRemote, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	remote, err := NewRedisRemote(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })
	return remote, mr
}

func TestLayered_GetOrCompute(t *testing.T) {
	ctx := context.Background()

	t.Run("computes on full miss and caches", func(t *testing.T) {
		remote, _ := newRedisRemote(t)
		layered := NewLayered(remote, nil)

		computes := 0
		compute := func(context.Context) (interface{}, error) {
			computes++
			return []float32{0.1, 0.2}, nil
		}

		var got []float32
		require.NoError(t, layered.GetOrCompute(ctx, "emb:k1", time.Minute, &got, compute))
		assert.Equal(t, []float32{0.1, 0.2}, got)
		assert.Equal(t, 1, computes)

		// Second call is served from the local tier.
		var again []float32
		require.NoError(t, layered.GetOrCompute(ctx, "emb:k1", time.Minute, &again, compute))
		assert.Equal(t, got, again)
		assert.Equal(t, 1, computes)
	})

	t.Run("remote tier survives local reset", func(t *testing.T) {
		remote, _ := newRedisRemote(t)
		layered := NewLayered(remote, nil)

		computes := 0
		compute := func(context.Context) (interface{}, error) {
			computes++
			return "value", nil
		}

		var got string
		require.NoError(t, layered.GetOrCompute(ctx, "k2", time.Minute, &got, compute))
		require.Equal(t, 1, computes)

		// Simulates a fresh process: local tier empty, remote still warm.
		layered.Reset()

		var again string
		require.NoError(t, layered.GetOrCompute(ctx, "k2", time.Minute, &again, compute))
		assert.Equal(t, "value", again)
		assert.Equal(t, 1, computes)
	})

	t.Run("degrades to compute when remote unavailable", func(t *testing.T) {
		remote, mr := newRedisRemote(t)
		layered := NewLayered(remote, nil)
		mr.Close()

		computes := 0
		var got int
		err := layered.GetOrCompute(ctx, "k3", time.Minute, &got, func(context.Context) (interface{}, error) {
			computes++
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, 1, computes)
	})

	t.Run("works without remote tier", func(t *testing.T) {
		layered := NewLayered(nil, nil)

		var got string
		err := layered.GetOrCompute(ctx, "k4", time.Minute, &got, func(context.Context) (interface{}, error) {
			return "local-only", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "local-only", got)
	})

	t.Run("propagates compute error without caching", func(t *testing.T) {
		layered := NewLayered(nil, nil)
		boom := errors.New("collaborator down")

		var got string
		err := layered.GetOrCompute(ctx, "k5", time.Minute, &got, func(context.Context) (interface{}, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		// A later successful compute is still invoked.
		err = layered.GetOrCompute(ctx, "k5", time.Minute, &got, func(context.Context) (interface{}, error) {
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "recovered", got)
	})
}

func TestLayered_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	remote, mr := newRedisRemote(t)
	layered := NewLayered(remote, nil)

	computes := 0
	compute := func(context.Context) (interface{}, error) {
		computes++
		return computes, nil
	}

	var got int
	require.NoError(t, layered.GetOrCompute(ctx, "k", 50*time.Millisecond, &got, compute))
	require.Equal(t, 1, got)

	// Expire both tiers.
	time.Sleep(60 * time.Millisecond)
	mr.FastForward(time.Second)

	require.NoError(t, layered.GetOrCompute(ctx, "k", 50*time.Millisecond, &got, compute))
	assert.Equal(t, 2, got)
}

func TestLayered_Invalidate(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRedisRemote(t)
	layered := NewLayered(remote, nil)

	computes := 0
	compute := func(context.Context) (interface{}, error) {
		computes++
		return computes, nil
	}

	var got int
	require.NoError(t, layered.GetOrCompute(ctx, "k", time.Minute, &got, compute))
	layered.Invalidate(ctx, "k")
	require.NoError(t, layered.GetOrCompute(ctx, "k", time.Minute, &got, compute))
	assert.Equal(t, 2, computes)
}

func TestLocalCache_TTL(t *testing.T) {
	c := newLocalCache()
	c.set("k", []byte("v"), 20*time.Millisecond)

	data, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.get("k")
	assert.False(t, ok)
}

func TestRedisRemote_NotFound(t *testing.T) {
	remote, _ := newRedisRemote(t)
	_, err := remote.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
