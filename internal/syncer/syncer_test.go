package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserae/vectorsync/internal/enrich"
	"github.com/tesserae/vectorsync/internal/schema"
	"github.com/tesserae/vectorsync/internal/source"
	"github.com/tesserae/vectorsync/internal/tenant"
	"github.com/tesserae/vectorsync/internal/vectorstore"
)

const testCollection = "vectorsync_rules"

// fakeEmbedder derives a deterministic vector from text length and can be
// told to fail on specific inputs.
type fakeEmbedder struct {
	failOn map[string]error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if err, ok := f.failOn[text]; ok {
		return nil, err
	}
	return []float32{float32(len(text)), 1, 0.5}, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }
func (f *fakeEmbedder) Model() string  { return "fake-model" }

type failingEnricher struct{}

func (failingEnricher) Enrich(context.Context, string, string) (string, error) {
	return "", errors.New("enrichment collaborator down")
}

type upperEnricher struct{}

func (upperEnricher) Enrich(_ context.Context, original, _ string) (string, error) {
	return "ENRICHED: " + original, nil
}

func newTestCoordinator(t *testing.T, store vectorstore.Store, enricher enrich.Enricher, embedder *fakeEmbedder) *Coordinator {
	t.Helper()
	if embedder == nil {
		embedder = &fakeEmbedder{}
	}
	var pipeline *enrich.Pipeline
	if enricher != nil {
		pipeline = enrich.NewPipeline(enricher, time.Second, nil)
	}
	c, err := New(store, embedder, pipeline, nil, Config{Concurrency: 3}, nil)
	require.NoError(t, err)
	return c
}

func newTestStore(t *testing.T) *vectorstore.MemoryStore {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), testCollection, 3, vectorstore.DistanceCosine))
	return store
}

func entriesFor(t *testing.T, store vectorstore.Store, tenantID, sourceID string) []vectorstore.SearchResult {
	t.Helper()
	results, err := store.Query(context.Background(), testCollection, vectorstore.Query{
		Filter:      map[string]interface{}{"tenant_id": tenantID, "source_id": sourceID},
		TopK:        10,
		WithPayload: true,
	})
	require.NoError(t, err)
	return results
}

func TestCoordinator_SyncDocument(t *testing.T) {
	ctx := context.Background()
	info := &tenant.Info{TenantID: "t1"}

	t.Run("creates one entry with the deterministic id", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		id, created, err := c.SyncDocument(ctx, info, testCollection, "rules", source.Document{
			SourceID: "42",
			Name:     "Return Policy",
			Content:  "Items returnable in 7 days",
		})
		require.NoError(t, err)
		assert.Equal(t, "t1_42", id)
		assert.True(t, created)

		entries := entriesFor(t, store, "t1", "42")
		require.Len(t, entries, 1)
		assert.Equal(t, "t1_42", entries[0].ID)
	})

	t.Run("re-sync with changed content updates in place", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		doc := source.Document{SourceID: "42", Name: "Return Policy", Content: "Items returnable in 7 days"}
		_, _, err := c.SyncDocument(ctx, info, testCollection, "rules", doc)
		require.NoError(t, err)

		doc.Content = "Items returnable in 14 days"
		id, created, err := c.SyncDocument(ctx, info, testCollection, "rules", doc)
		require.NoError(t, err)
		assert.Equal(t, "t1_42", id)
		assert.False(t, created)

		entries := entriesFor(t, store, "t1", "42")
		require.Len(t, entries, 1)

		payload, err := schema.FromStored(entries[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, "Items returnable in 14 days", payload.Content.Original)
	})

	t.Run("idempotent resync leaves an equal payload", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		doc := source.Document{
			SourceID:    "42",
			Name:        "Return Policy",
			Content:     "Items returnable in 7 days",
			LastUpdated: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		}
		_, _, err := c.SyncDocument(ctx, info, testCollection, "rules", doc)
		require.NoError(t, err)
		first := entriesFor(t, store, "t1", "42")
		require.Len(t, first, 1)

		_, _, err = c.SyncDocument(ctx, info, testCollection, "rules", doc)
		require.NoError(t, err)
		second := entriesFor(t, store, "t1", "42")
		require.Len(t, second, 1)
		assert.Equal(t, first[0].Payload, second[0].Payload)
	})

	t.Run("legacy entry is migrated and deleted", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		// A pre-scheme entry under a random id for the same document.
		legacy := schema.Payload{
			Metadata: schema.Metadata{TenantID: "t1", SourceID: "42", Name: "Return Policy"},
			Content:  schema.Content{Original: "old", Processed: "old"},
		}
		require.NoError(t, store.Upsert(ctx, testCollection, []vectorstore.Point{{
			ID:      "8f14e45f_legacy",
			Vector:  []float32{1, 0, 0},
			Payload: legacy.Project(),
		}}))

		_, created, err := c.SyncDocument(ctx, info, testCollection, "rules", source.Document{
			SourceID: "42",
			Name:     "Return Policy",
			Content:  "Items returnable in 7 days",
		})
		require.NoError(t, err)
		assert.False(t, created)

		entries := entriesFor(t, store, "t1", "42")
		require.Len(t, entries, 1)
		assert.Equal(t, "t1_42", entries[0].ID)
	})

	t.Run("legacy residue from an earlier failed delete is swept", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		// Both the deterministic entry and a leftover legacy entry exist,
		// as after a migration whose legacy delete failed mid-flight.
		for _, id := range []string{"t1_42", "zz_legacy"} {
			stale := schema.Payload{
				Metadata: schema.Metadata{TenantID: "t1", SourceID: "42", Name: "Return Policy"},
				Content:  schema.Content{Original: "old", Processed: "old"},
			}
			require.NoError(t, store.Upsert(ctx, testCollection, []vectorstore.Point{{
				ID:      id,
				Vector:  []float32{1, 0, 0},
				Payload: stale.Project(),
			}}))
		}

		_, created, err := c.SyncDocument(ctx, info, testCollection, "rules", source.Document{
			SourceID: "42",
			Name:     "Return Policy",
			Content:  "Items returnable in 7 days",
		})
		require.NoError(t, err)
		assert.False(t, created)

		entries := entriesFor(t, store, "t1", "42")
		require.Len(t, entries, 1)
		assert.Equal(t, "t1_42", entries[0].ID)
	})

	t.Run("enrichment failure falls back to original text", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, failingEnricher{}, nil)

		_, _, err := c.SyncDocument(ctx, info, testCollection, "rules", source.Document{
			SourceID: "42",
			Name:     "Return Policy",
			Content:  "Items returnable in 7 days",
		})
		require.NoError(t, err)

		entries := entriesFor(t, store, "t1", "42")
		require.Len(t, entries, 1)
		payload, err := schema.FromStored(entries[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, payload.Content.Original, payload.Content.Processed)
		assert.False(t, payload.Metadata.AIProcessed)
	})

	t.Run("successful enrichment is recorded", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, upperEnricher{}, nil)

		_, _, err := c.SyncDocument(ctx, info, testCollection, "rules", source.Document{
			SourceID: "42",
			Name:     "Return Policy",
			Content:  "Items returnable in 7 days",
		})
		require.NoError(t, err)

		entries := entriesFor(t, store, "t1", "42")
		require.Len(t, entries, 1)
		payload, err := schema.FromStored(entries[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, "ENRICHED: Items returnable in 7 days", payload.Content.Processed)
		assert.True(t, payload.Metadata.AIProcessed)
	})

	t.Run("rejects documents missing required fields", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		_, _, err := c.SyncDocument(ctx, info, testCollection, "rules", source.Document{SourceID: "42"})
		assert.ErrorIs(t, err, source.ErrValidation)
	})

	t.Run("rejects invalid tenant", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		_, _, err := c.SyncDocument(ctx, &tenant.Info{}, testCollection, "rules", source.Document{
			SourceID: "42", Name: "n",
		})
		assert.ErrorIs(t, err, tenant.ErrInvalidTenant)
	})
}

func TestCoordinator_Sync(t *testing.T) {
	ctx := context.Background()
	info := &tenant.Info{TenantID: "t1"}

	t.Run("syncs a full batch", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		docs := []source.Document{
			{SourceID: "1", Name: "A", Content: "alpha"},
			{SourceID: "2", Name: "B", Content: "beta"},
			{SourceID: "3", Name: "C", Content: "gamma"},
		}
		result, err := c.Sync(ctx, info, testCollection, "rules", docs)
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, 3, result.Total)
		assert.Equal(t, []string{"t1_1", "t1_2", "t1_3"}, result.SyncedIDs)
		assert.Empty(t, result.Errors)
	})

	t.Run("one embedding failure does not poison the batch", func(t *testing.T) {
		store := newTestStore(t)
		embedder := &fakeEmbedder{failOn: map[string]error{"beta": errors.New("model timeout")}}
		c := newTestCoordinator(t, store, nil, embedder)

		docs := []source.Document{
			{SourceID: "1", Name: "A", Content: "alpha"},
			{SourceID: "2", Name: "B", Content: "beta"},
			{SourceID: "3", Name: "C", Content: "gamma"},
		}
		result, err := c.Sync(ctx, info, testCollection, "rules", docs)
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, []string{"t1_1", "t1_3"}, result.SyncedIDs)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "2", result.Errors[0].SourceID)
		assert.Contains(t, result.Errors[0].Message, "model timeout")
	})

	t.Run("invalid documents are skipped, batch continues", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		docs := []source.Document{
			{SourceID: "1", Name: "A", Content: "alpha"},
			{SourceID: "2", Content: "missing name"},
		}
		result, err := c.Sync(ctx, info, testCollection, "rules", docs)
		require.NoError(t, err)

		assert.Equal(t, []string{"t1_1"}, result.SyncedIDs)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "2", result.Errors[0].SourceID)
	})

	t.Run("empty batch succeeds with zero counts", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		result, err := c.Sync(ctx, info, testCollection, "rules", nil)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Zero(t, result.Total)
	})

	t.Run("whole call fails on invalid collection name", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		_, err := c.Sync(ctx, info, "Bad Name!", "rules", nil)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
	})

	t.Run("concurrent syncs of the same document converge to one entry", func(t *testing.T) {
		store := newTestStore(t)
		c := newTestCoordinator(t, store, nil, nil)

		doc := source.Document{SourceID: "42", Name: "Return Policy", Content: "Items returnable in 7 days"}
		docs := make([]source.Document, 8)
		for i := range docs {
			docs[i] = doc
		}
		result, err := c.Sync(ctx, info, testCollection, "rules", docs)
		require.NoError(t, err)
		assert.True(t, result.Success)

		entries := entriesFor(t, store, "t1", "42")
		assert.Len(t, entries, 1)
	})
}
