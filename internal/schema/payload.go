// Package schema defines the versioned Vector Entry payload and its
// compatibility projection at the store boundary.
//
// The payload is authored once as a typed struct; Project flattens the
// filterable fields (tenant_id, source_id, collection_type, temporary,
// last_updated) to the top level in a single place instead of hand-copying
// them at every write site.
package schema

import (
	"errors"
	"fmt"
	"time"
)

// Version is the current payload schema version.
const Version = 1

// ErrMalformedPayload indicates a stored payload that cannot be decoded.
var ErrMalformedPayload = errors.New("malformed vector entry payload")

// Metadata identifies and describes a vector entry.
type Metadata struct {
	TenantID       string    `json:"tenant_id"`
	CollectionType string    `json:"collection_type"`
	SourceID       string    `json:"source_id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	LastUpdated    time.Time `json:"last_updated"`
	// AIProcessed is true when the enrichment collaborator produced the
	// processed content, false when sync fell back to the original text.
	AIProcessed bool `json:"ai_processed"`
}

// Content holds the original and processed text of an entry.
type Content struct {
	Original  string `json:"original"`
	Processed string `json:"processed"`
}

// Payload is the structured payload persisted with every vector entry.
type Payload struct {
	Metadata       Metadata               `json:"metadata"`
	Content        Content                `json:"content"`
	StructuredData map[string]interface{} `json:"structured_data,omitempty"`
}

// Project converts the payload into the stored map form.
//
// This is the single compatibility-projection step: nested metadata/content
// blocks for readers, plus top-level copies of the fields the store filters
// on. Qdrant payload indexes only apply to top-level keys, so the flattened
// copies are what make tenant isolation and existence checks work.
func (p *Payload) Project() map[string]interface{} {
	m := map[string]interface{}{
		"schema_version": int64(Version),
		"metadata": map[string]interface{}{
			"tenant_id":       p.Metadata.TenantID,
			"collection_type": p.Metadata.CollectionType,
			"source_id":       p.Metadata.SourceID,
			"name":            p.Metadata.Name,
			"type":            p.Metadata.Type,
			"last_updated":    p.Metadata.LastUpdated.UTC().Format(time.RFC3339Nano),
			"ai_processed":    p.Metadata.AIProcessed,
		},
		"content": map[string]interface{}{
			"original":  p.Content.Original,
			"processed": p.Content.Processed,
		},
		// Flattened filterable fields.
		"tenant_id":       p.Metadata.TenantID,
		"collection_type": p.Metadata.CollectionType,
		"source_id":       p.Metadata.SourceID,
		"last_updated":    p.Metadata.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
	if len(p.StructuredData) > 0 {
		m["structured_data"] = p.StructuredData
		// Promotional/temporary flag participates in caller filters.
		if tmp, ok := p.StructuredData["temporary"].(bool); ok {
			m["temporary"] = tmp
		}
	}
	return m
}

// FromStored decodes a stored payload map back into a Payload.
//
// Legacy entries written before this scheme may lack the nested blocks; the
// decoder falls back to the flattened fields so pre-scheme points remain
// readable during migration.
func FromStored(stored map[string]interface{}) (*Payload, error) {
	if stored == nil {
		return nil, ErrMalformedPayload
	}

	p := &Payload{}

	if meta, ok := stored["metadata"].(map[string]interface{}); ok {
		p.Metadata = Metadata{
			TenantID:       str(meta["tenant_id"]),
			CollectionType: str(meta["collection_type"]),
			SourceID:       str(meta["source_id"]),
			Name:           str(meta["name"]),
			Type:           str(meta["type"]),
			AIProcessed:    boolean(meta["ai_processed"]),
		}
		p.Metadata.LastUpdated = parseTime(meta["last_updated"])
	} else {
		// Legacy flat form.
		p.Metadata = Metadata{
			TenantID:       str(stored["tenant_id"]),
			CollectionType: str(stored["collection_type"]),
			SourceID:       str(stored["source_id"]),
			Name:           str(stored["name"]),
		}
		p.Metadata.LastUpdated = parseTime(stored["last_updated"])
	}

	if content, ok := stored["content"].(map[string]interface{}); ok {
		p.Content = Content{
			Original:  str(content["original"]),
			Processed: str(content["processed"]),
		}
	} else if c := str(stored["content"]); c != "" {
		p.Content = Content{Original: c, Processed: c}
	}

	if sd, ok := stored["structured_data"].(map[string]interface{}); ok {
		p.StructuredData = sd
	}

	if p.Metadata.TenantID == "" || p.Metadata.SourceID == "" {
		return nil, fmt.Errorf("%w: missing tenant_id or source_id", ErrMalformedPayload)
	}

	return p, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func boolean(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func parseTime(v interface{}) time.Time {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	case time.Time:
		return t
	}
	return time.Time{}
}
