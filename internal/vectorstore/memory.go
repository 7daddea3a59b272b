package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tesserae/vectorsync/internal/tenant"
)

// MemoryStore is an embedded in-process Store.
//
// It backs tests and small single-node deployments, and mirrors the external
// backend's semantics: replace-by-id upsert, mandatory tenant filtering, and
// filtered similarity search. Upserts are serialized with a mutex so
// replace-by-id stays atomic, matching the guarantee the sync coordinator
// relies on.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	vectorSize uint64
	distance   Distance
	points     map[string]memPoint
}

type memPoint struct {
	id      string
	vector  []float32
	payload map[string]interface{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

// EnsureCollection creates the collection if absent. Idempotent.
func (s *MemoryStore) EnsureCollection(_ context.Context, name string, vectorSize uint64, distance Distance) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if vectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &memCollection{
			vectorSize: vectorSize,
			distance:   distance,
			points:     make(map[string]memPoint),
		}
	}
	return nil
}

// Upsert performs insert-or-replace writes keyed by Point.ID.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return ErrEmptyPoints
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	for i, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point %d has empty id", i)
		}
		if err := tenant.ValidateMetadata(p.Payload); err != nil {
			return fmt.Errorf("point %s: %w", p.ID, err)
		}
		vector := make([]float32, len(p.Vector))
		copy(vector, p.Vector)
		payload := make(map[string]interface{}, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload["id"] = p.ID
		coll.points[p.ID] = memPoint{id: p.ID, vector: vector, payload: payload}
	}
	return nil
}

// Query performs a filtered similarity search or metadata scroll.
func (s *MemoryStore) Query(_ context.Context, collection string, q Query) ([]SearchResult, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", q.TopK)
	}
	if err := tenant.ValidateFilter(q.Filter); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	var results []SearchResult
	for _, p := range coll.points {
		if !matchesFilter(p.payload, q.Filter) {
			continue
		}
		r := SearchResult{ID: p.id}
		if q.Vector != nil {
			r.Score = cosineSimilarity(q.Vector, p.vector)
		}
		if q.WithVectors {
			r.Vector = append([]float32(nil), p.vector...)
		}
		if q.WithPayload {
			r.Payload = clonePayload(p.payload)
		}
		results = append(results, r)
	}

	if q.Vector != nil {
		sort.Slice(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return results[i].ID < results[j].ID
		})
	} else {
		// Scroll order is unspecified by the backend; sort by id so tests
		// are reproducible.
		sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	}

	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results, nil
}

// Delete removes points by their stable ids.
func (s *MemoryStore) Delete(_ context.Context, collection string, ids []string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for _, id := range ids {
		delete(coll.points, id)
	}
	return nil
}

// Count returns the number of points in a collection.
func (s *MemoryStore) Count(_ context.Context, collection string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return uint64(len(coll.points)), nil
}

// Close is a no-op for the embedded store.
func (s *MemoryStore) Close() error {
	return nil
}

func matchesFilter(payload, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case string:
			if g, ok := got.(string); !ok || g != w {
				return false
			}
		case bool:
			if g, ok := got.(bool); !ok || g != w {
				return false
			}
		case int:
			if !intEqual(got, int64(w)) {
				return false
			}
		case int64:
			if !intEqual(got, w) {
				return false
			}
		case []string:
			g, ok := got.(string)
			if !ok {
				return false
			}
			found := false
			for _, candidate := range w {
				if candidate == g {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func intEqual(got interface{}, want int64) bool {
	switch g := got.(type) {
	case int:
		return int64(g) == want
	case int64:
		return g == want
	default:
		return false
	}
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func clonePayload(payload map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		clone[k] = v
	}
	return clone
}

// Ensure MemoryStore implements Store interface.
var _ Store = (*MemoryStore)(nil)
