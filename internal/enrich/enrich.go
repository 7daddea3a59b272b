// Package enrich wraps the external text-enrichment collaborator. The
// collaborator is allowed to fail; the Pipeline absorbs every failure mode
// and falls back to the original text, so enrichment never blocks a sync.
package enrich

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEnrichmentFailed indicates the collaborator returned an error.
	ErrEnrichmentFailed = errors.New("enrichment failed")
)

// Enricher produces an enriched rendering of a document's text.
type Enricher interface {
	// Enrich rewrites the original text using the surrounding business
	// context. Implementations may fail or time out.
	Enrich(ctx context.Context, original, businessContext string) (string, error)
}

// Result is the outcome of running a document through the Pipeline.
type Result struct {
	// Text is the content to embed and store, enriched or original.
	Text string

	// AIProcessed reports whether Text differs from the original input.
	AIProcessed bool
}

// Pipeline runs an Enricher with an explicit failure policy. Errors,
// timeouts, empty output, and output identical to the input all resolve to
// the original text with AIProcessed false.
type Pipeline struct {
	enricher Enricher
	timeout  time.Duration
	logger   *zap.Logger
}

// NewPipeline creates a Pipeline. A nil enricher disables enrichment
// entirely, every document passes through unmodified.
func NewPipeline(enricher Enricher, timeout time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{enricher: enricher, timeout: timeout, logger: logger}
}

// Process enriches original and reports whether the output actually changed.
// It never returns an error.
func (p *Pipeline) Process(ctx context.Context, original, businessContext string) Result {
	fallback := Result{Text: original, AIProcessed: false}
	if p.enricher == nil || strings.TrimSpace(original) == "" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	processed, err := p.enricher.Enrich(ctx, original, businessContext)
	if err != nil {
		p.logger.Warn("enrichment failed, using original text", zap.Error(err))
		return fallback
	}
	if strings.TrimSpace(processed) == "" {
		p.logger.Warn("enrichment returned empty text, using original")
		return fallback
	}
	if processed == original {
		return fallback
	}

	return Result{Text: processed, AIProcessed: true}
}
