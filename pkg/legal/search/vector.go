package search

import (
	"context"
	"fmt"

	"legal-assistant-be/pkg/embedding"
	"legal-assistant-be/pkg/legal/state"
)

// Chunk is one stored legislation passage with its similarity to a query.
type Chunk struct {
	DocumentID   string
	Content      string
	Citation     string
	Jurisdiction string
	SourceURL    string
	Similarity   float64
}

// ChunkIndex is the vector store behind legislation search.
type ChunkIndex interface {
	SearchSimilar(ctx context.Context, vec []float32, jurisdiction string, limit int, threshold float64) ([]Chunk, error)
}

// Jurisdictions with legislation in the index. ACT matters are served from
// federal law; other states fall back to federal with a note.
var indexedJurisdiction = map[string]string{
	"NSW":         "NSW",
	"QLD":         "QLD",
	"ACT":         state.Federal,
	state.Federal: state.Federal,
}

const minSimilarity = 0.3

type VectorSearcher struct {
	embedder embedding.EmbeddingProvider
	index    ChunkIndex
}

func NewVectorSearcher(embedder embedding.EmbeddingProvider, index ChunkIndex) *VectorSearcher {
	return &VectorSearcher{embedder: embedder, index: index}
}

func (s *VectorSearcher) Search(ctx context.Context, query, jurisdiction string, topK int) (Response, error) {
	if topK <= 0 {
		topK = 5
	}
	target, supported := indexedJurisdiction[jurisdiction]
	var note string
	if !supported && jurisdiction != "" {
		target = state.Federal
		note = fmt.Sprintf("%s legislation is not yet available in our database. Showing relevant Federal law instead.", jurisdiction)
	}

	vec, err := s.embedder.Generate(ctx, query, embedding.TaskQuery)
	if err != nil {
		return Response{}, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := s.index.SearchSimilar(ctx, vec, target, topK*4, minSimilarity)
	if err != nil {
		return Response{}, fmt.Errorf("vector search: %w", err)
	}

	// one passage per document keeps results diverse
	seen := make(map[string]bool)
	var results []Result
	for _, c := range chunks {
		if c.DocumentID != "" {
			if seen[c.DocumentID] {
				continue
			}
			seen[c.DocumentID] = true
		}
		results = append(results, Result{
			Content:      c.Content,
			Citation:     c.Citation,
			Jurisdiction: c.Jurisdiction,
			SourceURL:    c.SourceURL,
			Score:        c.Similarity,
			Source:       SourceLegislation,
		})
		if len(results) >= topK {
			break
		}
	}

	resp := Response{Results: results, Confidence: Tier(results)}
	if len(results) > 0 {
		resp.Note = note
	}
	return resp, nil
}
