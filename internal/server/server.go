// Package server provides the HTTP API for vectorsyncd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tesserae/vectorsync/internal/search"
	"github.com/tesserae/vectorsync/internal/service"
	"github.com/tesserae/vectorsync/internal/source"
	"github.com/tesserae/vectorsync/internal/tenant"
	"github.com/tesserae/vectorsync/internal/vectorstore"
)

// TenantHeader carries the tenant identifier on every API request.
const TenantHeader = "X-Tenant-ID"

// Server provides HTTP endpoints for sync and search.
type Server struct {
	echo    *echo.Echo
	svc     *service.Service
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(svc *service.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			metrics.RecordRequest(c.Request().Context(), c.Request().Method, c.Path(), c.Response().Status, duration)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sync", s.handleSync)
	v1.POST("/search", s.handleSearch)
}

// SyncDocument is one document in a sync request.
type SyncDocument struct {
	SourceID    string                 `json:"source_id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type,omitempty"`
	Content     string                 `json:"content"`
	Structured  map[string]interface{} `json:"structured_data,omitempty"`
	LastUpdated time.Time              `json:"last_updated,omitempty"`
}

// SyncRequest is the request body for POST /api/v1/sync.
type SyncRequest struct {
	CollectionType string         `json:"collection_type"`
	Documents      []SyncDocument `json:"documents"`
}

// SyncFailure is the response body when the whole sync call fails.
type SyncFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	CollectionType string                 `json:"collection_type"`
	Query          string                 `json:"query"`
	Filters        map[string]interface{} `json:"filters,omitempty"`
	TopK           int                    `json:"top_k,omitempty"`
	HybridWeight   *float64               `json:"hybrid_weight,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// tenantInfo extracts the tenant from the request header.
func tenantInfo(c echo.Context) (*tenant.Info, error) {
	id := c.Request().Header.Get(TenantHeader)
	info := &tenant.Info{TenantID: id}
	if err := info.Validate(); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, TenantHeader+" header is required")
	}
	return info, nil
}

func (s *Server) handleSync(c echo.Context) error {
	info, err := tenantInfo(c)
	if err != nil {
		return err
	}

	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid sync request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CollectionType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "collection_type field is required")
	}

	docs := make([]source.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = source.Document{
			SourceID:    d.SourceID,
			Name:        d.Name,
			Type:        d.Type,
			Content:     d.Content,
			Structured:  d.Structured,
			LastUpdated: d.LastUpdated,
		}
	}

	result, err := s.svc.Sync(c.Request().Context(), info, req.CollectionType, docs)
	if err != nil {
		if isBadRequest(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		// The batch as a whole could not run, typically the store being
		// unreachable during collection setup.
		s.logger.Error("sync call failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, SyncFailure{Success: false, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleSearch(c echo.Context) error {
	info, err := tenantInfo(c)
	if err != nil {
		return err
	}

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CollectionType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "collection_type field is required")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	results, err := s.svc.Search(c.Request().Context(), info, req.CollectionType, search.Request{
		Query:        req.Query,
		Filters:      req.Filters,
		TopK:         req.TopK,
		HybridWeight: req.HybridWeight,
	})
	if err != nil {
		if errors.Is(err, search.ErrRanking) {
			s.logger.Error("search ranking failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		if isBadRequest(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	return c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

func isBadRequest(err error) bool {
	return errors.Is(err, tenant.ErrInvalidTenant) ||
		errors.Is(err, tenant.ErrReservedFilterKey) ||
		errors.Is(err, source.ErrValidation) ||
		errors.Is(err, vectorstore.ErrInvalidCollectionName)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
