// Package vectorstore defines the interface for vector storage operations and
// its backends.
//
// Collections are shared across tenants. Isolation is achieved entirely
// through mandatory tenant filters on every read and write: a query without a
// tenant condition and a point without a tenant tag are both rejected before
// they reach the backend (fail closed).
package vectorstore

import (
	"context"
	"errors"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPoints indicates an upsert with no points.
	ErrEmptyPoints = errors.New("empty or nil points")

	// ErrConnectionFailed indicates backend connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Distance is the similarity metric used for a collection.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceEuclid Distance = "euclid"
	DistanceDot    Distance = "dot"
)

// Point is the persisted unit: a stable id, a dense vector, and the projected
// payload. The id is the deterministic storage key; backends that require
// UUID point keys derive one from it and keep the original in the payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchResult is a single scored point returned from a query. Vector and
// Payload are populated only when the query asked for them.
type SearchResult struct {
	ID      string
	Score   float32
	Vector  []float32
	Payload map[string]interface{}
}

// Query describes a filtered read.
//
// With a Vector it is a similarity search; with a nil Vector it is a
// metadata-only scroll, which is how the existence check stays cheap.
type Query struct {
	// Vector is the dense query vector. Nil means metadata-only scroll.
	Vector []float32

	// Filter is the payload filter. It MUST contain a tenant condition.
	Filter map[string]interface{}

	// TopK limits the number of results.
	TopK int

	// WithPayload requests payloads in the results.
	WithPayload bool

	// WithVectors requests vectors in the results. Existence checks leave
	// this false to avoid moving vectors over the wire.
	WithVectors bool
}

// Store is the interface for vector storage operations.
//
// Implementations:
//   - QdrantStore: external Qdrant over gRPC
//   - MemoryStore: embedded in-process store for tests and small deployments
type Store interface {
	// EnsureCollection creates the collection if it does not exist and makes
	// sure the tenant payload index is present. Idempotent.
	EnsureCollection(ctx context.Context, name string, vectorSize uint64, distance Distance) error

	// Upsert performs insert-or-replace writes keyed by Point.ID.
	// Every point's payload must carry the tenant tag.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Query performs a filtered similarity search or metadata scroll.
	// The query filter must carry the tenant condition.
	Query(ctx context.Context, collection string, q Query) ([]SearchResult, error)

	// Delete removes points by their stable ids.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points in a collection.
	Count(ctx context.Context, collection string) (uint64, error)

	// Close releases backend resources.
	Close() error
}

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special characters, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return errors.New("collection name cannot be empty")
	}
	if !collectionNamePattern.MatchString(name) {
		return ErrInvalidCollectionName
	}
	return nil
}
