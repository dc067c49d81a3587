package service

import (
	"context"
	"fmt"
	"strings"

	"legal-assistant-be/internal/model"
	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/internal/repository/contract"
	"legal-assistant-be/pkg/embedding"
	"legal-assistant-be/pkg/utils"

	"github.com/pgvector/pgvector-go"
)

const (
	// ~375 tokens per chunk keeps every embedding model in budget.
	ingestChunkSize    = 1500
	ingestChunkOverlap = 200
)

// LegislationDocument is one act or regulation to index.
type LegislationDocument struct {
	DocumentId   string
	Citation     string
	Jurisdiction string
	SourceUrl    string
	Text         string
}

type IIngestService interface {
	Ingest(ctx context.Context, doc LegislationDocument) (int, error)
}

type ingestService struct {
	chunks   contract.LegalChunkRepository
	embedder embedding.EmbeddingProvider
	logger   logger.ILogger
}

func NewIngestService(chunks contract.LegalChunkRepository, embedder embedding.EmbeddingProvider, log logger.ILogger) IIngestService {
	return &ingestService{chunks: chunks, embedder: embedder, logger: log}
}

// Ingest replaces every stored chunk of doc and reports how many were
// written. Nothing is replaced unless every chunk embeds.
func (s *ingestService) Ingest(ctx context.Context, doc LegislationDocument) (int, error) {
	if doc.DocumentId == "" || doc.Jurisdiction == "" {
		return 0, fmt.Errorf("document id and jurisdiction are required")
	}
	parts := utils.SplitText(doc.Text, ingestChunkSize, ingestChunkOverlap)
	if len(parts) == 0 {
		return 0, fmt.Errorf("document %s is empty", doc.DocumentId)
	}

	rows := make([]*model.LegalChunk, 0, len(parts))
	for i, part := range parts {
		content := fmt.Sprintf("%s\n\n%s", doc.Citation, part)
		vec, err := s.embedder.Generate(ctx, content, embedding.TaskDocument)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %s: %w", i, doc.DocumentId, err)
		}
		rows = append(rows, &model.LegalChunk{
			DocumentId:     doc.DocumentId,
			Citation:       doc.Citation,
			Jurisdiction:   strings.ToUpper(doc.Jurisdiction),
			SourceUrl:      doc.SourceUrl,
			Content:        part,
			ChunkIndex:     i,
			EmbeddingValue: pgvector.NewVector(vec),
		})
	}

	if err := s.chunks.DeleteByDocumentId(ctx, doc.DocumentId); err != nil {
		return 0, fmt.Errorf("clear %s: %w", doc.DocumentId, err)
	}
	if err := s.chunks.CreateBatch(ctx, rows); err != nil {
		return 0, fmt.Errorf("store %s: %w", doc.DocumentId, err)
	}

	s.logger.Info("IngestService", "document indexed", map[string]interface{}{
		"document_id":  doc.DocumentId,
		"jurisdiction": doc.Jurisdiction,
		"chunks":       len(rows),
	})
	return len(rows), nil
}
