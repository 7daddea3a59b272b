package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserae/vectorsync/internal/tenant"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), "rules", 3, DistanceCosine))
	return store
}

func testPoint(id, tenantID string, vector []float32) Point {
	return Point{
		ID:     id,
		Vector: vector,
		Payload: map[string]interface{}{
			"tenant_id": tenantID,
			"source_id": id,
		},
	}
}

func TestMemoryStore_EnsureCollection(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, store.EnsureCollection(ctx, "rules", 3, DistanceCosine))
		require.NoError(t, store.EnsureCollection(ctx, "rules", 3, DistanceCosine))
	})

	t.Run("rejects invalid name", func(t *testing.T) {
		err := store.EnsureCollection(ctx, "Not-Valid!", 3, DistanceCosine)
		assert.ErrorIs(t, err, ErrInvalidCollectionName)
	})

	t.Run("rejects zero vector size", func(t *testing.T) {
		err := store.EnsureCollection(ctx, "rules2", 0, DistanceCosine)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestMemoryStore_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("replace by id keeps one point", func(t *testing.T) {
		store := newTestStore(t)
		p := testPoint("t1_42", "t1", []float32{1, 0, 0})
		require.NoError(t, store.Upsert(ctx, "rules", []Point{p}))

		p.Payload["name"] = "updated"
		require.NoError(t, store.Upsert(ctx, "rules", []Point{p}))

		count, err := store.Count(ctx, "rules")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), count)
	})

	t.Run("rejects point without tenant tag", func(t *testing.T) {
		store := newTestStore(t)
		err := store.Upsert(ctx, "rules", []Point{{
			ID:      "x",
			Vector:  []float32{1, 0, 0},
			Payload: map[string]interface{}{"source_id": "x"},
		}})
		assert.ErrorIs(t, err, tenant.ErrMissingTenant)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		store := newTestStore(t)
		assert.ErrorIs(t, store.Upsert(ctx, "rules", nil), ErrEmptyPoints)
	})

	t.Run("unknown collection", func(t *testing.T) {
		store := NewMemoryStore()
		err := store.Upsert(ctx, "nope", []Point{testPoint("a", "t1", []float32{1, 0, 0})})
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})
}

func TestMemoryStore_Query(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, "rules", []Point{
		testPoint("t1_1", "t1", []float32{1, 0, 0}),
		testPoint("t1_2", "t1", []float32{0, 1, 0}),
		testPoint("t2_1", "t2", []float32{1, 0, 0}),
	}))

	t.Run("similarity orders by score", func(t *testing.T) {
		results, err := store.Query(ctx, "rules", Query{
			Vector: []float32{1, 0, 0},
			Filter: map[string]interface{}{"tenant_id": "t1"},
			TopK:   10,
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "t1_1", results[0].ID)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("never crosses tenants", func(t *testing.T) {
		results, err := store.Query(ctx, "rules", Query{
			Vector: []float32{1, 0, 0},
			Filter: map[string]interface{}{"tenant_id": "t2"},
			TopK:   10,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "t2_1", results[0].ID)
	})

	t.Run("fails closed without tenant filter", func(t *testing.T) {
		_, err := store.Query(ctx, "rules", Query{
			Vector: []float32{1, 0, 0},
			Filter: map[string]interface{}{"source_id": "1"},
			TopK:   10,
		})
		assert.ErrorIs(t, err, tenant.ErrMissingTenant)
	})

	t.Run("metadata scroll without vector", func(t *testing.T) {
		results, err := store.Query(ctx, "rules", Query{
			Filter: map[string]interface{}{"tenant_id": "t1", "source_id": "t1_2"},
			TopK:   1,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "t1_2", results[0].ID)
		assert.Nil(t, results[0].Payload)
	})

	t.Run("with vectors returns the stored vector", func(t *testing.T) {
		results, err := store.Query(ctx, "rules", Query{
			Filter:      map[string]interface{}{"tenant_id": "t1", "source_id": "t1_1"},
			TopK:        1,
			WithVectors: true,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, []float32{1, 0, 0}, results[0].Vector)
	})

	t.Run("vectors stay off the wire unless requested", func(t *testing.T) {
		results, err := store.Query(ctx, "rules", Query{
			Filter: map[string]interface{}{"tenant_id": "t1", "source_id": "t1_1"},
			TopK:   1,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Nil(t, results[0].Vector)
	})

	t.Run("with payload returns stored payload", func(t *testing.T) {
		results, err := store.Query(ctx, "rules", Query{
			Filter:      map[string]interface{}{"tenant_id": "t1", "source_id": "t1_1"},
			TopK:        1,
			WithPayload: true,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "t1", results[0].Payload["tenant_id"])
	})

	t.Run("empty collection returns empty result", func(t *testing.T) {
		empty := NewMemoryStore()
		require.NoError(t, empty.EnsureCollection(ctx, "rules", 3, DistanceCosine))
		results, err := empty.Query(ctx, "rules", Query{
			Vector: []float32{1, 0, 0},
			Filter: map[string]interface{}{"tenant_id": "t1"},
			TopK:   5,
		})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, "rules", []Point{
		testPoint("t1_1", "t1", []float32{1, 0, 0}),
		testPoint("t1_2", "t1", []float32{0, 1, 0}),
	}))

	require.NoError(t, store.Delete(ctx, "rules", []string{"t1_1"}))

	count, err := store.Count(ctx, "rules")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// Deleting absent ids is a no-op.
	require.NoError(t, store.Delete(ctx, "rules", []string{"missing"}))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}
