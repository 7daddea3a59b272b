// Package syncer implements the upsert coordinator: it guarantees at most
// one vector entry per logical document, no matter how often or how
// concurrently sync runs.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tesserae/vectorsync/internal/embeddings"
	"github.com/tesserae/vectorsync/internal/enrich"
	"github.com/tesserae/vectorsync/internal/identity"
	"github.com/tesserae/vectorsync/internal/schema"
	"github.com/tesserae/vectorsync/internal/source"
	"github.com/tesserae/vectorsync/internal/tenant"
	"github.com/tesserae/vectorsync/internal/vectorstore"
)

// Config holds configuration for the coordinator.
type Config struct {
	// Concurrency bounds the number of documents synced in parallel.
	// Default: 5.
	Concurrency int

	// DocumentTimeout bounds one document's full sync pipeline. A timeout
	// fails only that document. Default: 60s.
	DocumentTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.DocumentTimeout <= 0 {
		c.DocumentTimeout = 60 * time.Second
	}
}

// SyncError records one document's failure within a batch.
type SyncError struct {
	SourceID string `json:"source_id"`
	Message  string `json:"message"`
}

// Result summarizes a batch sync. Per-document failures never fail the
// batch; they are listed in Errors while the rest of the batch proceeds.
type Result struct {
	Success   bool        `json:"success"`
	Total     int         `json:"total"`
	SyncedIDs []string    `json:"synced_ids"`
	Errors    []SyncError `json:"errors,omitempty"`
}

// Coordinator orchestrates identity resolution, enrichment, embedding, and
// the store upsert for each document.
type Coordinator struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	pipeline *enrich.Pipeline
	context  source.ContextReader
	config   Config
	logger   *zap.Logger
}

// New creates a Coordinator. The enrichment pipeline and context reader are
// optional; everything else is required.
func New(store vectorstore.Store, embedder embeddings.Embedder, pipeline *enrich.Pipeline, contextReader source.ContextReader, config Config, logger *zap.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if pipeline == nil {
		pipeline = enrich.NewPipeline(nil, config.DocumentTimeout, logger)
	}

	return &Coordinator{
		store:    store,
		embedder: embedder,
		pipeline: pipeline,
		context:  contextReader,
		config:   config,
		logger:   logger,
	}, nil
}

// Sync processes a batch of documents for one tenant and collection with
// bounded concurrency. Document order in the batch carries no ordering
// guarantee; each document succeeds or fails independently.
//
// The returned Result always reports counts; Sync returns a non-nil error
// only when the batch as a whole cannot run (invalid tenant or collection).
func (c *Coordinator) Sync(ctx context.Context, info *tenant.Info, collection, collectionType string, docs []source.Document) (*Result, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	result := &Result{Total: len(docs)}
	if len(docs) == 0 {
		result.Success = true
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			id, _, err := c.syncOne(gctx, info, collection, collectionType, doc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, SyncError{SourceID: doc.SourceID, Message: err.Error()})
				return nil
			}
			result.SyncedIDs = append(result.SyncedIDs, id)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.SyncedIDs)
	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].SourceID < result.Errors[j].SourceID
	})
	result.Success = len(result.Errors) == 0

	c.logger.Info("batch sync finished",
		zap.String("tenant_id", info.TenantID),
		zap.String("collection", collection),
		zap.Int("total", result.Total),
		zap.Int("synced", len(result.SyncedIDs)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// SyncDocument synchronizes a single document. It returns the stable id and
// whether the document was newly created (as opposed to updated in place).
func (c *Coordinator) SyncDocument(ctx context.Context, info *tenant.Info, collection, collectionType string, doc source.Document) (string, bool, error) {
	if err := info.Validate(); err != nil {
		return "", false, err
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return "", false, err
	}
	return c.syncOne(ctx, info, collection, collectionType, doc)
}

// syncOne runs the strictly sequential per-document pipeline:
// existence check, enrich, embed, upsert.
func (c *Coordinator) syncOne(ctx context.Context, info *tenant.Info, collection, collectionType string, doc source.Document) (string, bool, error) {
	if err := doc.Validate(); err != nil {
		return "", false, err
	}
	if err := identity.Validate(info.TenantID, doc.SourceID); err != nil {
		return "", false, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.DocumentTimeout)
	defer cancel()

	id := identity.Resolve(info.TenantID, doc.SourceID)
	legacyIDs, exists := c.findExisting(ctx, info, collection, doc.SourceID, id)

	enriched := c.pipeline.Process(ctx, doc.Content, c.businessContext(ctx, info.TenantID))

	vector, err := c.embedder.EmbedQuery(ctx, enriched.Text)
	if err != nil {
		return "", false, fmt.Errorf("embedding document %s: %w", doc.SourceID, err)
	}

	lastUpdated := doc.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	payload := schema.Payload{
		Metadata: schema.Metadata{
			TenantID:       info.TenantID,
			CollectionType: collectionType,
			SourceID:       doc.SourceID,
			Name:           doc.Name,
			Type:           doc.Type,
			LastUpdated:    lastUpdated,
			AIProcessed:    enriched.AIProcessed,
		},
		Content: schema.Content{
			Original:  doc.Content,
			Processed: enriched.Text,
		},
		StructuredData: doc.Structured,
	}

	point := vectorstore.Point{ID: id, Vector: vector, Payload: payload.Project()}
	if err := c.store.Upsert(ctx, collection, []vectorstore.Point{point}); err != nil {
		return "", false, fmt.Errorf("upserting document %s: %w", doc.SourceID, err)
	}

	// Migrate-and-delete: once the entry lives under the deterministic id,
	// legacy points are redundant and keeping them would break the
	// one-entry-per-document invariant. A failed delete leaves residue that
	// the next sync's existence check picks up and sweeps again.
	if len(legacyIDs) > 0 {
		if err := c.store.Delete(ctx, collection, legacyIDs); err != nil {
			c.logger.Warn("failed to delete legacy entries after migration",
				zap.Strings("legacy_ids", legacyIDs),
				zap.String("id", id),
				zap.Error(err),
			)
		} else {
			c.logger.Info("migrated legacy entries to deterministic id",
				zap.Strings("legacy_ids", legacyIDs),
				zap.String("id", id),
			)
		}
	}

	return id, !exists, nil
}

// existenceCheckLimit bounds the existence scroll. One entry is the steady
// state; the headroom makes legacy residue left by an earlier failed delete
// visible next to the deterministic entry so it can be swept.
const existenceCheckLimit = 8

// findExisting runs the cheap existence check: a metadata scroll filtered by
// (tenant_id, source_id), no payload or vectors. It reports whether any
// entry exists and returns every matching id that differs from the
// deterministic one, meaning legacy entries that must be migrated away.
// Errors degrade to "not found" so a flaky store read never blocks sync.
func (c *Coordinator) findExisting(ctx context.Context, info *tenant.Info, collection, sourceID, id string) ([]string, bool) {
	filter := info.Filter()
	filter["source_id"] = sourceID

	results, err := c.store.Query(ctx, collection, vectorstore.Query{
		Filter: filter,
		TopK:   existenceCheckLimit,
	})
	if err != nil {
		c.logger.Warn("existence check failed, treating as not found",
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
		return nil, false
	}

	var legacy []string
	for _, r := range results {
		if r.ID != id {
			legacy = append(legacy, r.ID)
		}
	}
	return legacy, len(results) > 0
}

func (c *Coordinator) businessContext(ctx context.Context, tenantID string) string {
	if c.context == nil {
		return ""
	}
	bc, err := c.context.BusinessContext(ctx, tenantID)
	if err != nil {
		c.logger.Warn("business context unavailable, proceeding without it",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return ""
	}
	return bc
}
