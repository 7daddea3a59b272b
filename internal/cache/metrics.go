package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const cacheInstrumentationName = "github.com/tesserae/vectorsync/internal/cache"

// Metrics holds cache hit/miss instrumentation.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger
	hits   metric.Int64Counter
	misses metric.Int64Counter
	errors metric.Int64Counter
}

// NewMetrics creates a Metrics instance for the cache.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(cacheInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.hits, err = m.meter.Int64Counter(
		"vectorsync.cache.hits_total",
		metric.WithDescription("Total cache hits by tier (local, remote)"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		m.logger.Warn("failed to create hits counter", zap.Error(err))
	}

	m.misses, err = m.meter.Int64Counter(
		"vectorsync.cache.misses_total",
		metric.WithDescription("Total cache misses by tier (local, remote)"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		m.logger.Warn("failed to create misses counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"vectorsync.cache.errors_total",
		metric.WithDescription("Total cache tier errors, almost always remote tier unavailability"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordHit records a cache hit for a tier.
func (m *Metrics) RecordHit(ctx context.Context, tier string) {
	if m.hits != nil {
		m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
	}
}

// RecordMiss records a cache miss for a tier.
func (m *Metrics) RecordMiss(ctx context.Context, tier string) {
	if m.misses != nil {
		m.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
	}
}

// RecordError records a tier error.
func (m *Metrics) RecordError(ctx context.Context, tier string) {
	if m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
	}
}
