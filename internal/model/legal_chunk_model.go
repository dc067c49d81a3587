package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type LegalChunk struct {
	Id             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentId     string          `gorm:"type:varchar(255);not null;index"`
	Citation       string          `gorm:"type:text;not null"`
	Jurisdiction   string          `gorm:"type:varchar(16);not null;index"`
	SourceUrl      string          `gorm:"type:text"`
	Content        string          `gorm:"type:text;not null"`
	ChunkIndex     int             `gorm:"default:0"` // 0-based position within the document
	EmbeddingValue pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
}

func (LegalChunk) TableName() string {
	return "legal_chunks"
}
