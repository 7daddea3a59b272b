package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()
	svc, err := NewService(Config{
		BaseURL:   baseURL,
		Model:     "test-model",
		Dimension: 3,
	})
	require.NoError(t, err)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"missing base URL", Config{Model: "m", Dimension: 3}},
		{"missing model", Config{BaseURL: "http://localhost", Dimension: 3}},
		{"missing dimension", Config{BaseURL: "http://localhost", Model: "m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.config)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestService_EmbedDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("returns one vector per text", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embed", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			inputs, ok := req.Inputs.([]interface{})
			require.True(t, ok)

			vectors := make([][]float32, len(inputs))
			for i := range vectors {
				vectors[i] = []float32{float32(i), 0.5, 0.25}
			}
			require.NoError(t, json.NewEncoder(w).Encode(vectors))
		})

		svc := newTestService(t, srv.URL)
		vectors, err := svc.EmbedDocuments(ctx, []string{"alpha", "beta"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, []float32{0, 0.5, 0.25}, vectors[0])
		assert.Equal(t, []float32{1, 0.5, 0.25}, vectors[1])
	})

	t.Run("rejects empty input", func(t *testing.T) {
		svc := newTestService(t, "http://localhost:1")
		_, err := svc.EmbedDocuments(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("errors on vector count mismatch", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1, 2, 3}}))
		})

		svc := newTestService(t, srv.URL)
		_, err := svc.EmbedDocuments(ctx, []string{"a", "b"})
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})

	t.Run("errors on non-200 status", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		})

		svc := newTestService(t, srv.URL)
		_, err := svc.EmbedDocuments(ctx, []string{"a"})
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Contains(t, err.Error(), "503")
	})
}

func TestService_EmbedQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the first vector", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "where is the invoice", req.Inputs)
			require.NoError(t, json.NewEncoder(w).Encode([][]float32{{0.9, 0.8, 0.7}}))
		})

		svc := newTestService(t, srv.URL)
		vector, err := svc.EmbedQuery(ctx, "where is the invoice")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.9, 0.8, 0.7}, vector)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		svc := newTestService(t, "http://localhost:1")
		_, err := svc.EmbedQuery(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("errors on empty response", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewEncoder(w).Encode([][]float32{}))
		})

		svc := newTestService(t, srv.URL)
		_, err := svc.EmbedQuery(ctx, "query")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		})

		svc := newTestService(t, srv.URL)
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := svc.EmbedQuery(cctx, "query")
		assert.Error(t, err)
	})
}

func TestService_Accessors(t *testing.T) {
	svc := newTestService(t, "http://localhost:1")
	assert.Equal(t, 3, svc.Dimension())
	assert.Equal(t, "test-model", svc.Model())
}
