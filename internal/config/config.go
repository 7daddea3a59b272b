// Package config provides configuration loading for vectorsyncd.
//
// Configuration is resolved from hardcoded defaults, overridden by a YAML
// file, overridden by environment variables. The resulting Config is an
// explicit object handed to constructors at process start, never ambient
// global state.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete vectorsyncd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	Redis         RedisConfig         `koanf:"redis"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Enrichment    EnrichmentConfig    `koanf:"enrichment"`
	Sync          SyncConfig          `koanf:"sync"`
	Search        SearchConfig        `koanf:"search"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// VectorStoreConfig selects the storage backend.
type VectorStoreConfig struct {
	// Provider is "qdrant" or "memory". The memory backend is for tests and
	// single-node evaluation only; it does not persist.
	Provider string `koanf:"provider"`

	// CollectionPrefix namespaces collections, e.g. prefix "vectorsync" and
	// collection type "rules" become "vectorsync_rules".
	CollectionPrefix string `koanf:"collection_prefix"`
}

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	MaxRetries int    `koanf:"max_retries"`
}

// RedisConfig holds the shared cache tier configuration. An empty Addr
// disables the remote tier; the local tier still runs.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// EmbeddingsConfig holds embedding collaborator configuration.
type EmbeddingsConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	Dimension int           `koanf:"dimension"`
	Timeout   time.Duration `koanf:"timeout"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// EnrichmentConfig holds enrichment collaborator configuration. An empty
// BaseURL disables enrichment; documents pass through unmodified.
type EnrichmentConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`

	// BusinessContext is a fixed description of the tenant's domain passed
	// to the enrichment collaborator alongside each document.
	BusinessContext string `koanf:"business_context"`
}

// SyncConfig holds batch sync configuration.
type SyncConfig struct {
	Concurrency     int           `koanf:"concurrency"`
	DocumentTimeout time.Duration `koanf:"document_timeout"`
}

// SearchConfig holds retrieval engine configuration.
type SearchConfig struct {
	TopK                int           `koanf:"top_k"`
	HybridWeight        float64       `koanf:"hybrid_weight"`
	CandidateMultiplier int           `koanf:"candidate_multiplier"`
	CacheTTL            time.Duration `koanf:"cache_ttl"`
}

// ObservabilityConfig holds logging and OpenTelemetry configuration.
type ObservabilityConfig struct {
	ServiceName string `koanf:"service_name"`
	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`

	// OTLP export. Disabled by default; instrumented code still runs
	// against the no-op providers.
	OTLPEnabled     bool          `koanf:"otlp_enabled"`
	OTLPEndpoint    string        `koanf:"otlp_endpoint"`
	OTLPProtocol    string        `koanf:"otlp_protocol"`
	OTLPInsecure    bool          `koanf:"otlp_insecure"`
	TraceSampleRate float64       `koanf:"trace_sample_rate"`
	MetricInterval  time.Duration `koanf:"metric_interval"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "qdrant"
	}
	if cfg.VectorStore.CollectionPrefix == "" {
		cfg.VectorStore.CollectionPrefix = "vectorsync"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 384
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 30 * time.Second
	}
	if cfg.Embeddings.CacheTTL == 0 {
		cfg.Embeddings.CacheTTL = 24 * time.Hour
	}

	if cfg.Enrichment.Timeout == 0 {
		cfg.Enrichment.Timeout = 30 * time.Second
	}

	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 5
	}
	if cfg.Sync.DocumentTimeout == 0 {
		cfg.Sync.DocumentTimeout = 60 * time.Second
	}

	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 10
	}
	// Search.HybridWeight is defaulted in Load: zero means pure sparse
	// ranking, so it cannot double as the unset sentinel.
	if cfg.Search.CandidateMultiplier == 0 {
		cfg.Search.CandidateMultiplier = 4
	}
	if cfg.Search.CacheTTL == 0 {
		cfg.Search.CacheTTL = 30 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "vectorsyncd"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}
	if cfg.Observability.TraceSampleRate == 0 {
		cfg.Observability.TraceSampleRate = 1.0
	}
	if cfg.Observability.MetricInterval == 0 {
		cfg.Observability.MetricInterval = 60 * time.Second
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port out of range: %d", c.Server.Port))
	}

	switch c.VectorStore.Provider {
	case "qdrant", "memory":
	default:
		errs = append(errs, fmt.Errorf("vectorstore.provider must be qdrant or memory, got %q", c.VectorStore.Provider))
	}

	if c.Embeddings.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension))
	}
	if c.Search.HybridWeight < 0 || c.Search.HybridWeight > 1 {
		errs = append(errs, fmt.Errorf("search.hybrid_weight must be in [0, 1], got %v", c.Search.HybridWeight))
	}
	if c.Sync.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency))
	}

	return errors.Join(errs...)
}
