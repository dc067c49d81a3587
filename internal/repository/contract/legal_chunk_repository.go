package contract

import (
	"context"

	"legal-assistant-be/internal/model"
	"legal-assistant-be/pkg/legal/search"
)

type LegalChunkRepository interface {
	search.ChunkIndex

	CreateBatch(ctx context.Context, chunks []*model.LegalChunk) error
	DeleteByDocumentId(ctx context.Context, documentId string) error
	CountByJurisdiction(ctx context.Context) (map[string]int64, error)
}
