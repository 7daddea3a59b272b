// Package service composes the sync coordinator and retrieval engine behind
// one surface, owning collection naming and lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tesserae/vectorsync/internal/search"
	"github.com/tesserae/vectorsync/internal/source"
	"github.com/tesserae/vectorsync/internal/syncer"
	"github.com/tesserae/vectorsync/internal/tenant"
	"github.com/tesserae/vectorsync/internal/vectorstore"
)

// Service exposes the two top-level operations: Sync and Search.
//
// Collections are shared across tenants and named "{prefix}_{collectionType}".
// Sync ensures the collection exists before any document is processed; a
// store that cannot even do that fails the whole call.
type Service struct {
	store       vectorstore.Store
	coordinator *syncer.Coordinator
	engine      *search.Engine
	prefix      string
	vectorSize  uint64
	logger      *zap.Logger
}

// New creates a Service.
func New(store vectorstore.Store, coordinator *syncer.Coordinator, engine *search.Engine, prefix string, vectorSize uint64, logger *zap.Logger) (*Service, error) {
	if store == nil || coordinator == nil || engine == nil {
		return nil, errors.New("store, coordinator, and engine are required")
	}
	if vectorSize == 0 {
		return nil, errors.New("vector size is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "vectorsync"
	}
	if err := vectorstore.ValidateCollectionName(prefix); err != nil {
		return nil, fmt.Errorf("invalid collection prefix %q: %w", prefix, err)
	}

	return &Service{
		store:       store,
		coordinator: coordinator,
		engine:      engine,
		prefix:      prefix,
		vectorSize:  vectorSize,
		logger:      logger,
	}, nil
}

// CollectionName resolves a collection type to its physical collection name.
func (s *Service) CollectionName(collectionType string) (string, error) {
	name := s.prefix + "_" + collectionType
	if err := vectorstore.ValidateCollectionName(name); err != nil {
		return "", fmt.Errorf("invalid collection type %q: %w", collectionType, err)
	}
	return name, nil
}

// Sync synchronizes a batch of documents for one tenant into one collection
// type. Per-document failures are reported in the Result; Sync returns a
// non-nil error only when the batch as a whole cannot run.
func (s *Service) Sync(ctx context.Context, info *tenant.Info, collectionType string, docs []source.Document) (*syncer.Result, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	collection, err := s.CollectionName(collectionType)
	if err != nil {
		return nil, err
	}

	if err := s.store.EnsureCollection(ctx, collection, s.vectorSize, vectorstore.DistanceCosine); err != nil {
		return nil, fmt.Errorf("ensuring collection %s: %w", collection, err)
	}

	return s.coordinator.Sync(ctx, info, collection, collectionType, docs)
}

// Search runs a hybrid query for one tenant over one collection type.
// A collection that has never been synced is an empty corpus, not an error.
func (s *Service) Search(ctx context.Context, info *tenant.Info, collectionType string, req search.Request) ([]search.Result, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	collection, err := s.CollectionName(collectionType)
	if err != nil {
		return nil, err
	}

	results, err := s.engine.Search(ctx, info, collection, req)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return []search.Result{}, nil
		}
		return nil, err
	}
	return results, nil
}

// Count reports the number of entries in a collection type across all
// tenants. Used by the CLI and operational checks.
func (s *Service) Count(ctx context.Context, collectionType string) (uint64, error) {
	collection, err := s.CollectionName(collectionType)
	if err != nil {
		return 0, err
	}
	return s.store.Count(ctx, collection)
}
