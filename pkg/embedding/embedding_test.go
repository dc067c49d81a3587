package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProviderNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tenant bond", req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{3, 4}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "")
	vec, err := p.Generate(context.Background(), "tenant bond", TaskQuery)
	require.NoError(t, err)
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestOllamaProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing").Generate(context.Background(), "x", TaskQuery)
	assert.ErrorContains(t, err, "model not found")
}

func TestNormalizeZeroVector(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, normalizeVector([]float32{0, 0}))
	v := normalizeVector([]float32{1, 1, 1, 1})
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider("word2vec", "", "", "")
	assert.Error(t, err)
}
