// Package telemetry manages the OpenTelemetry providers for vectorsyncd.
//
// Telemetry failures never crash the process; a provider that cannot be
// built leaves the global no-op provider in place and marks the instance
// degraded.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Config holds telemetry configuration.
type Config struct {
	// Enabled turns OTLP export on. When false, New returns a no-op
	// instance and instrumented code records into no-op providers.
	Enabled bool

	// Endpoint is the OTLP collector endpoint, host:port.
	Endpoint string

	// Protocol is "grpc" (default) or "http/protobuf".
	Protocol string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// SamplingRate is the trace sampling ratio in [0, 1].
	SamplingRate float64

	// ExportInterval is the metric export period. Default: 60s.
	ExportInterval time.Duration

	// ServiceName and ServiceVersion identify this process in the backend.
	ServiceName    string
	ServiceVersion string
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("telemetry endpoint required when enabled")
	}
	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("unknown telemetry protocol %q", c.Protocol)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be in [0, 1], got %v", c.SamplingRate)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Protocol == "" {
		c.Protocol = "grpc"
	}
	if c.ExportInterval == 0 {
		c.ExportInterval = 60 * time.Second
	}
	if c.ServiceName == "" {
		c.ServiceName = "vectorsyncd"
	}
}

// Telemetry owns the tracer and meter providers and their shutdown.
type Telemetry struct {
	config Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	degraded atomic.Bool
}

// New creates a Telemetry instance and installs the global providers.
//
// When disabled, it returns a no-op instance. Provider initialization errors
// degrade the instance instead of failing startup.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		t.degraded.Store(true)
		return t, nil
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		t.degraded.Store(true)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		t.degraded.Store(true)
	} else {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t, nil
}

// Degraded reports whether any provider failed to initialize.
func (t *Telemetry) Degraded() bool {
	return t != nil && t.degraded.Load()
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
