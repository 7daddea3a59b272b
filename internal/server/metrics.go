package server

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/tesserae/vectorsync/internal/server"

// HTTPMetrics holds HTTP request instrumentation.
type HTTPMetrics struct {
	meter         metric.Meter
	logger        *zap.Logger
	requestsTotal metric.Int64Counter
	requestDur    metric.Float64Histogram
}

// NewHTTPMetrics creates a new HTTPMetrics instance.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"vectorsync.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, endpoint, and status code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.requestDur, err = m.meter.Float64Histogram(
		"vectorsync.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds, labeled by method, endpoint, and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

// RecordRequest records one completed HTTP request.
func (m *HTTPMetrics) RecordRequest(ctx context.Context, method, endpoint string, status int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.String("status", strconv.Itoa(status)),
	}

	if m.requestsTotal != nil {
		m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.requestDur != nil {
		m.requestDur.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}
