// Package cache provides the three-tier get-or-compute cache shared by the
// embedding adapter and the retrieval engine.
//
// Lookup order: in-process map (process lifetime, TTL-bound) -> shared Redis
// (cross-process, TTL-bound) -> authoritative compute(). The external tier is
// best-effort: when Redis is unavailable the layer degrades to compute()
// instead of surfacing the failure. Eviction is TTL-only within each tier.
//
// The cache is an explicit object with a lifecycle - constructed at process
// start, invalidated on configuration-change events - not ambient global
// state.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by a tier when a key is not present.
var ErrNotFound = errors.New("key not found in cache")

// Remote is the shared external cache tier. May be nil (single-tier mode)
// and may be unavailable at any time.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Layered resolves keys through the local tier, then the remote tier, then
// the supplied compute function.
type Layered struct {
	local   *localCache
	remote  Remote
	logger  *zap.Logger
	metrics *Metrics
}

// NewLayered creates a Layered cache. remote may be nil to run without the
// shared tier; logger may be nil for a nop logger.
func NewLayered(remote Remote, logger *zap.Logger) *Layered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layered{
		local:   newLocalCache(),
		remote:  remote,
		logger:  logger,
		metrics: NewMetrics(logger),
	}
}

// GetOrCompute resolves key through the tiers and decodes the value into dest.
//
// On a miss at every tier, compute() is called once and its result is written
// back to both tiers with the given ttl. Remote-tier failures are logged and
// skipped - the caller never sees them.
func (l *Layered) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{}, compute func(context.Context) (interface{}, error)) error {
	if data, ok := l.local.get(key); ok {
		l.metrics.RecordHit(ctx, "local")
		return json.Unmarshal(data, dest)
	}
	l.metrics.RecordMiss(ctx, "local")

	if l.remote != nil {
		data, err := l.remote.Get(ctx, key)
		switch {
		case err == nil:
			l.metrics.RecordHit(ctx, "remote")
			l.local.set(key, data, ttl)
			return json.Unmarshal(data, dest)
		case errors.Is(err, ErrNotFound):
			l.metrics.RecordMiss(ctx, "remote")
		default:
			// Degrade, never raise: an unavailable shared tier just means
			// this call pays the compute cost.
			l.metrics.RecordError(ctx, "remote")
			l.logger.Debug("remote cache unavailable, computing directly",
				zap.String("key", key), zap.Error(err))
		}
	}

	value, err := compute(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}

	l.local.set(key, data, ttl)
	if l.remote != nil {
		if err := l.remote.Set(ctx, key, data, ttl); err != nil {
			l.metrics.RecordError(ctx, "remote")
			l.logger.Debug("remote cache set failed", zap.String("key", key), zap.Error(err))
		}
	}

	return json.Unmarshal(data, dest)
}

// Invalidate removes a key from every tier.
func (l *Layered) Invalidate(ctx context.Context, key string) {
	l.local.delete(key)
	if l.remote != nil {
		if err := l.remote.Delete(ctx, key); err != nil {
			l.logger.Debug("remote cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Reset clears the local tier. Called on configuration-change events; the
// remote tier is left to expire by TTL since other processes share it.
func (l *Layered) Reset() {
	l.local.clear()
}

// Close releases the remote tier connection.
func (l *Layered) Close() error {
	if l.remote != nil {
		return l.remote.Close()
	}
	return nil
}
