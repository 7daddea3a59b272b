package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tesserae/vectorsync/internal/identity"
	"github.com/tesserae/vectorsync/internal/tenant"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("vectorsync.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by convention, not the 6333 REST port).
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Doubles on each retry. Default: 1 second.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB.
	MaxMessageSize int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability,
// false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// Point keys: Qdrant requires UUID point ids, while the engine's stable ids
// are plain strings ("t1_42"). The store derives a deterministic UUIDv5 from
// the stable id and keeps the original under payload["id"], so replace-by-id
// semantics hold for the logical key.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
}

// NewQdrantStore creates a QdrantStore, connects, and health-checks it.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on transient errors.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// EnsureCollection creates the collection and payload indexes if absent. Idempotent.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectorSize uint64, distance Distance) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int64("vector_size", int64(vectorSize)),
	)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if vectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}

	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	if !exists {
		err := s.retryOperation(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     vectorSize,
					Distance: qdrantDistance(distance),
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
	}

	// Payload indexes back the mandatory tenant filter and the cheap
	// existence check. Creating an existing index is a no-op server-side.
	for _, field := range []string{"tenant_id", "source_id"} {
		err := s.retryOperation(ctx, "create_field_index", func() error {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: name,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("indexing %s on collection %s: %w", field, name, err)
		}
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

func (s *QdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	return exists, err
}

// Upsert performs insert-or-replace writes keyed by Point.ID.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("point_count", len(points)),
		attribute.String("collection", collection),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return ErrEmptyPoints
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point %d has empty id", i)
		}
		if err := tenant.ValidateMetadata(p.Payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("point %s: %w", p.ID, err)
		}

		payload := make(map[string]*qdrant.Value, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = valueFrom(v)
		}
		// Preserve the stable id for retrieval and id-based deletes.
		payload["id"] = valueFrom(p.ID)

		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qdrantPoints,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query performs a filtered similarity search or, with a nil vector, a
// metadata-only scroll.
func (s *QdrantStore) Query(ctx context.Context, collection string, q Query) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("top_k", q.TopK),
		attribute.Bool("scroll", q.Vector == nil),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", q.TopK)
	}
	if err := tenant.ValidateFilter(q.Filter); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	filter := buildFilter(q.Filter)

	var results []SearchResult
	var err error
	if q.Vector == nil {
		results, err = s.scroll(ctx, collection, filter, q)
	} else {
		results, err = s.similarity(ctx, collection, filter, q)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func (s *QdrantStore) similarity(ctx context.Context, collection string, filter *qdrant.Filter, q Query) ([]SearchResult, error) {
	var scored []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(q.Vector...),
			Limit:          qdrant.PtrOf(uint64(q.TopK)),
			Filter:         filter,
			// The payload carries the stable id, so it is always fetched.
			WithPayload: qdrant.NewWithPayload(true),
			WithVectors: qdrant.NewWithVectors(q.WithVectors),
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", collection, err)
	}

	results := make([]SearchResult, len(scored))
	for i, point := range scored {
		payload := payloadFrom(point.Payload)
		results[i] = SearchResult{ID: stableID(payload), Score: point.Score}
		if q.WithVectors {
			results[i].Vector = vectorFrom(point.Vectors)
		}
		if q.WithPayload {
			results[i].Payload = payload
		}
	}
	return results, nil
}

func (s *QdrantStore) scroll(ctx context.Context, collection string, filter *qdrant.Filter, q Query) ([]SearchResult, error) {
	var retrieved []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "scroll", func() error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(q.TopK)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(q.WithVectors),
		})
		if err != nil {
			return err
		}
		retrieved = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling collection %s: %w", collection, err)
	}

	results := make([]SearchResult, len(retrieved))
	for i, point := range retrieved {
		payload := payloadFrom(point.Payload)
		results[i] = SearchResult{ID: stableID(payload)}
		if q.WithVectors {
			results[i].Vector = vectorFrom(point.Vectors)
		}
		if q.WithPayload {
			results[i].Payload = payload
		}
	}
	return results, nil
}

// Delete removes points by their stable ids, matching on the preserved
// payload id rather than the derived UUID key.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("collection", collection),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							{
								ConditionOneOf: &qdrant.Condition_Field{
									Field: &qdrant.FieldCondition{
										Key: "id",
										Match: &qdrant.Match{
											MatchValue: &qdrant.Match_Keywords{
												Keywords: &qdrant.RepeatedStrings{Strings: ids},
											},
										},
									},
								},
							},
						},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting from collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count returns the number of points in a collection.
func (s *QdrantStore) Count(ctx context.Context, collection string) (uint64, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Count")
	defer span.End()

	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}

	var count uint64
	err := s.retryOperation(ctx, "count", func() error {
		info, err := s.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}
		if info.PointsCount != nil {
			count = *info.PointsCount
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("counting collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return count, nil
}

// pointUUID passes through ids that already are UUIDs, and derives a
// deterministic UUID for the engine's stable string ids.
func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return identity.PointUUID(id)
}

func qdrantDistance(d Distance) qdrant.Distance {
	switch d {
	case DistanceEuclid:
		return qdrant.Distance_Euclid
	case DistanceDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// vectorFrom extracts the unnamed dense vector from a query response.
func vectorFrom(v *qdrant.VectorsOutput) []float32 {
	dense := v.GetVector()
	if dense == nil {
		return nil
	}
	return dense.GetData()
}

// stableID extracts the preserved stable id from a payload map.
func stableID(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}
	id, _ := payload["id"].(string)
	return id
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
