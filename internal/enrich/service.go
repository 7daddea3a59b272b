package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds configuration for the HTTP enrichment service.
type Config struct {
	// BaseURL is the base URL for the enrichment API.
	BaseURL string

	// Model is the enrichment model identifier, passed through to the API.
	Model string

	// Timeout bounds each enrichment request. Default: 30s.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Service calls an HTTP enrichment collaborator.
type Service struct {
	config Config
	client *http.Client
}

// NewService creates a new enrichment service with the given configuration.
func NewService(config Config) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Service{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type enrichRequest struct {
	Content string `json:"content"`
	Context string `json:"context,omitempty"`
	Model   string `json:"model,omitempty"`
}

type enrichResponse struct {
	Text string `json:"text"`
}

// Enrich sends the original text and business context to the collaborator.
func (s *Service) Enrich(ctx context.Context, original, businessContext string) (string, error) {
	body, err := json.Marshal(enrichRequest{
		Content: original,
		Context: businessContext,
		Model:   s.config.Model,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/enrich", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnrichmentFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrEnrichmentFailed, resp.StatusCode, string(respBody))
	}

	var parsed enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return parsed.Text, nil
}

// Ensure Service implements Enricher.
var _ Enricher = (*Service)(nil)
