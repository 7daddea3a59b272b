// Package source defines the contract with the source-of-record system that
// owns the documents being synchronized.
package source

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrValidation indicates a document is missing a required field. Documents
// failing validation are skipped during batch sync; the batch continues.
var ErrValidation = errors.New("document validation failed")

// Document is a logical record from the source of record. It is identified
// within a tenant by SourceID and carries everything needed to build a
// vector entry.
type Document struct {
	// SourceID is the source system's identifier for this record.
	SourceID string

	// Name is a human-readable title. Required.
	Name string

	// Type is the record kind within its collection (rule, product, faq).
	Type string

	// Content is the raw text to enrich and embed.
	Content string

	// Structured carries collection-specific extracted fields persisted
	// alongside the text.
	Structured map[string]interface{}

	// LastUpdated is the source system's modification timestamp. Zero means
	// unknown; the sync time is used instead.
	LastUpdated time.Time
}

// Validate checks the fields a vector entry cannot be built without.
func (d Document) Validate() error {
	if strings.TrimSpace(d.SourceID) == "" {
		return errors.Join(ErrValidation, errors.New("source id required"))
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.Join(ErrValidation, errors.New("name required"))
	}
	return nil
}

// ContextReader supplies the parent business context used to steer
// enrichment. The source system is occasionally unavailable, so callers
// treat a read failure as "no context" rather than an error.
type ContextReader interface {
	// BusinessContext returns descriptive context for a tenant, such as the
	// company profile or the collection's purpose. May fail.
	BusinessContext(ctx context.Context, tenantID string) (string, error)
}

// StaticContext is a ContextReader returning a fixed string. Useful when the
// business context is configured rather than fetched.
type StaticContext string

// BusinessContext returns the fixed context string.
func (s StaticContext) BusinessContext(context.Context, string) (string, error) {
	return string(s), nil
}
