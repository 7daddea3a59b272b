// Package search implements hybrid retrieval: a dense similarity query over
// the vector store fused with a sparse term-weight score, cached end to end.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tesserae/vectorsync/internal/cache"
	"github.com/tesserae/vectorsync/internal/embeddings"
	"github.com/tesserae/vectorsync/internal/schema"
	"github.com/tesserae/vectorsync/internal/sparse"
	"github.com/tesserae/vectorsync/internal/tenant"
	"github.com/tesserae/vectorsync/internal/vectorstore"
)

// ErrRanking indicates the query embedding failed. Ranking structurally
// requires the dense score, so the whole search fails rather than returning
// a partial ordering.
var ErrRanking = errors.New("ranking failed")

// Config holds configuration for the retrieval engine.
type Config struct {
	// TopK is the default number of results. Default: 10.
	TopK int

	// HybridWeight is the default dense weight w in
	// combined = w*dense + (1-w)*sparse. Default: 0.7.
	HybridWeight float64

	// CandidateMultiplier widens the dense candidate pool so sparse scoring
	// can promote entries the dense query ranked lower. Default: 4.
	CandidateMultiplier int

	// CacheTTL is how long ranked results stay cached. Kept short because the
	// corpus mutates on every sync. Default: 30s.
	CacheTTL time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.HybridWeight < 0 || c.HybridWeight > 1 {
		c.HybridWeight = 0.7
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = 4
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
}

// Request describes one search call.
type Request struct {
	// Query is the free-text query. Required.
	Query string

	// Filters are caller-supplied payload filters merged with the mandatory
	// tenant condition. Attempting to set tenant_id here is an error.
	Filters map[string]interface{}

	// TopK overrides the configured result count when positive.
	TopK int

	// HybridWeight overrides the configured dense weight when set.
	// 1 means pure dense ranking, 0 pure sparse.
	HybridWeight *float64
}

// Result is one ranked entry.
type Result struct {
	ID          string                 `json:"id"`
	Score       float64                `json:"score"`
	DenseScore  float64                `json:"dense_score"`
	SparseScore float64                `json:"sparse_score"`
	Payload     map[string]interface{} `json:"payload"`
}

// Engine composes the embedder, vector store, sparse scorer, and cache into
// ranked hybrid search.
type Engine struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	cache    *cache.Layered
	scorer   *sparse.Scorer
	config   Config
	logger   *zap.Logger
}

// New creates an Engine. The cache is optional.
func New(store vectorstore.Store, embedder embeddings.Embedder, layered *cache.Layered, config Config, logger *zap.Logger) (*Engine, error) {
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

	return &Engine{
		store:    store,
		embedder: embedder,
		cache:    layered,
		scorer:   sparse.NewScorer(),
		config:   config,
		logger:   logger,
	}, nil
}

// Search runs a hybrid query for one tenant over one collection.
//
// An empty corpus or no matches is an empty slice, not an error. A query
// embedding failure is ErrRanking.
func (e *Engine) Search(ctx context.Context, info *tenant.Info, collection string, req Request) ([]Result, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query is required")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.config.TopK
	}
	weight := e.config.HybridWeight
	if req.HybridWeight != nil {
		weight = *req.HybridWeight
		if weight < 0 || weight > 1 {
			return nil, fmt.Errorf("hybrid weight must be in [0, 1], got %v", weight)
		}
	}

	filter, err := tenant.ApplyFilter(info, req.Filters)
	if err != nil {
		return nil, err
	}

	key := e.cacheKey(info.TenantID, collection, req.Query, filter, topK, weight)
	var results []Result
	compute := func(ctx context.Context) (interface{}, error) {
		return e.search(ctx, collection, filter, req.Query, topK, weight)
	}

	if e.cache == nil {
		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return computed.([]Result), nil
	}

	if err := e.cache.GetOrCompute(ctx, key, e.config.CacheTTL, &results, compute); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) search(ctx context.Context, collection string, filter map[string]interface{}, query string, topK int, weight float64) ([]Result, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrRanking, err)
	}

	candidates, err := e.store.Query(ctx, collection, vectorstore.Query{
		Vector:      vector,
		Filter:      filter,
		TopK:        topK * e.config.CandidateMultiplier,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = candidateText(c.Payload)
	}
	sparseScores := e.scorer.Scores(query, texts)

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		dense := float64(c.Score)
		results[i] = Result{
			ID:          c.ID,
			DenseScore:  dense,
			SparseScore: sparseScores[i],
			Score:       weight*dense + (1-weight)*sparseScores[i],
			Payload:     c.Payload,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Equal scores break toward the fresher entry.
		return lastUpdated(results[i].Payload).After(lastUpdated(results[j].Payload))
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// candidateText returns the text sparse scoring runs against, preferring the
// processed content.
func candidateText(payload map[string]interface{}) string {
	p, err := schema.FromStored(payload)
	if err != nil {
		return ""
	}
	if p.Content.Processed != "" {
		return p.Content.Processed
	}
	return p.Content.Original
}

func lastUpdated(payload map[string]interface{}) time.Time {
	if payload == nil {
		return time.Time{}
	}
	raw, _ := payload["last_updated"].(string)
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// cacheKey derives a deterministic key from everything that affects the
// ranked result. json.Marshal sorts map keys, which makes the filter part
// canonical.
func (e *Engine) cacheKey(tenantID, collection, query string, filter map[string]interface{}, topK int, weight float64) string {
	filterJSON, _ := json.Marshal(filter)
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%d\x00%g", tenantID, collection, query, filterJSON, topK, weight)
	return "search:" + hex.EncodeToString(h.Sum(nil))
}
