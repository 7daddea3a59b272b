// Vectorsyncd is the document vectorization sync and retrieval daemon.
//
// It keeps a multi-tenant vector store in sync with source-of-record
// documents and serves hybrid (dense + sparse) search over them.
//
// Configuration is loaded from a YAML file and environment variables; see
// internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	vectorsyncd
//
//	# Explicit config file
//	vectorsyncd -config /etc/vectorsync/config.yaml
//
//	# Configure via environment
//	VECTORSYNC_SERVER_HTTP_PORT=9090 VECTORSYNC_QDRANT_HOST=qdrant vectorsyncd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tesserae/vectorsync/internal/cache"
	"github.com/tesserae/vectorsync/internal/config"
	"github.com/tesserae/vectorsync/internal/embeddings"
	"github.com/tesserae/vectorsync/internal/enrich"
	"github.com/tesserae/vectorsync/internal/logging"
	"github.com/tesserae/vectorsync/internal/search"
	"github.com/tesserae/vectorsync/internal/server"
	"github.com/tesserae/vectorsync/internal/service"
	"github.com/tesserae/vectorsync/internal/source"
	"github.com/tesserae/vectorsync/internal/syncer"
	"github.com/tesserae/vectorsync/internal/telemetry"
	"github.com/tesserae/vectorsync/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  vectorsyncd           Start the sync daemon\n")
			fmt.Fprintf(os.Stderr, "  vectorsyncd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("vectorsyncd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every component and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting vectorsyncd",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
	)

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Observability.OTLPEnabled,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Protocol:       cfg.Observability.OTLPProtocol,
		Insecure:       cfg.Observability.OTLPInsecure,
		SamplingRate:   cfg.Observability.TraceSampleRate,
		ExportInterval: cfg.Observability.MetricInterval,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()
	if tel.Degraded() {
		logger.Warn("telemetry degraded, continuing without full instrumentation")
	}

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	layered, err := newCache(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() { _ = layered.Close() }()

	embedService, err := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Embeddings.BaseURL,
		Model:     cfg.Embeddings.Model,
		Dimension: cfg.Embeddings.Dimension,
		Timeout:   cfg.Embeddings.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding service: %w", err)
	}
	embedder := embeddings.NewCachedEmbedder(embedService, layered, cfg.Embeddings.CacheTTL)

	pipeline, err := newEnrichment(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing enrichment: %w", err)
	}

	coordinator, err := syncer.New(store, embedder, pipeline,
		source.StaticContext(cfg.Enrichment.BusinessContext),
		syncer.Config{
			Concurrency:     cfg.Sync.Concurrency,
			DocumentTimeout: cfg.Sync.DocumentTimeout,
		}, logger)
	if err != nil {
		return fmt.Errorf("initializing sync coordinator: %w", err)
	}

	engine, err := search.New(store, embedder, layered, search.Config{
		TopK:                cfg.Search.TopK,
		HybridWeight:        cfg.Search.HybridWeight,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		CacheTTL:            cfg.Search.CacheTTL,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing retrieval engine: %w", err)
	}

	svc, err := service.New(store, coordinator, engine,
		cfg.VectorStore.CollectionPrefix, uint64(cfg.Embeddings.Dimension), logger)
	if err != nil {
		return fmt.Errorf("initializing service: %w", err)
	}

	srv, err := server.NewServer(svc, logger, &server.Config{
		Host: "0.0.0.0",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newStore(cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.VectorStore.Provider {
	case "memory":
		return vectorstore.NewMemoryStore(), nil
	default:
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			UseTLS:     cfg.Qdrant.UseTLS,
			MaxRetries: cfg.Qdrant.MaxRetries,
		})
	}
}

func newCache(cfg *config.Config, logger *zap.Logger) (*cache.Layered, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("redis not configured, running with local cache tier only")
		return cache.NewLayered(nil, logger), nil
	}

	remote, err := cache.NewRedisRemote(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		// The shared tier is best-effort even at startup.
		logger.Warn("redis unavailable, running with local cache tier only", zap.Error(err))
		return cache.NewLayered(nil, logger), nil
	}
	return cache.NewLayered(remote, logger), nil
}

func newEnrichment(cfg *config.Config, logger *zap.Logger) (*enrich.Pipeline, error) {
	if cfg.Enrichment.BaseURL == "" {
		logger.Info("enrichment not configured, documents pass through unmodified")
		return enrich.NewPipeline(nil, cfg.Enrichment.Timeout, logger), nil
	}

	enricher, err := enrich.NewService(enrich.Config{
		BaseURL: cfg.Enrichment.BaseURL,
		Model:   cfg.Enrichment.Model,
		Timeout: cfg.Enrichment.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return enrich.NewPipeline(enricher, cfg.Enrichment.Timeout, logger), nil
}
