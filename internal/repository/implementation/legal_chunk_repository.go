package implementation

import (
	"context"

	"legal-assistant-be/internal/model"
	"legal-assistant-be/internal/repository/contract"
	"legal-assistant-be/pkg/legal/search"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const chunkInsertBatch = 100

type LegalChunkRepositoryImpl struct {
	db *gorm.DB
}

func NewLegalChunkRepository(db *gorm.DB) contract.LegalChunkRepository {
	return &LegalChunkRepositoryImpl{db: db}
}

func (r *LegalChunkRepositoryImpl) CreateBatch(ctx context.Context, chunks []*model.LegalChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, chunkInsertBatch).Error
}

func (r *LegalChunkRepositoryImpl) DeleteByDocumentId(ctx context.Context, documentId string) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentId).Delete(&model.LegalChunk{}).Error
}

func (r *LegalChunkRepositoryImpl) CountByJurisdiction(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Jurisdiction string
		Total        int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.LegalChunk{}).
		Select("jurisdiction, count(*) as total").
		Group("jurisdiction").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Jurisdiction] = row.Total
	}
	return counts, nil
}

// SearchSimilar returns chunks of one jurisdiction ordered by cosine
// similarity, dropping those below threshold.
func (r *LegalChunkRepositoryImpl) SearchSimilar(ctx context.Context, vec []float32, jurisdiction string, limit int, threshold float64) ([]search.Chunk, error) {
	if limit <= 0 {
		limit = 5
	}

	// pgvector cosine distance is 1 - cosine similarity
	type result struct {
		model.LegalChunk
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(vec)
	query := r.db.WithContext(ctx).
		Table("legal_chunks").
		Select("legal_chunks.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Where("1 - (embedding_value <=> ?) >= ?", queryVector, threshold)
	if jurisdiction != "" {
		query = query.Where("jurisdiction = ?", jurisdiction)
	}
	err := query.
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	chunks := make([]search.Chunk, len(results))
	for i, res := range results {
		chunks[i] = search.Chunk{
			DocumentID:   res.DocumentId,
			Content:      res.Content,
			Citation:     res.Citation,
			Jurisdiction: res.Jurisdiction,
			SourceURL:    res.SourceUrl,
			Similarity:   res.Similarity,
		}
	}
	return chunks, nil
}
