package main

import (
	"log"

	"legal-assistant-be/internal/config"
	"legal-assistant-be/internal/model"
	"legal-assistant-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Step 1: Enabling extensions...")
	if err := database.EnableExtensions(db); err != nil {
		log.Fatalf("Error: %v", err)
	}

	log.Println("Step 2: Running AutoMigrate...")
	if err := db.AutoMigrate(&model.SessionRecord{}, &model.LegalChunk{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	log.Println("Step 3: Creating vector index...")
	// hnsw needs pgvector >= 0.5
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_legal_chunks_embedding ON legal_chunks USING hnsw (embedding_value vector_cosine_ops);`).Error; err != nil {
		log.Printf("Warn: vector index not created: %v", err)
	}

	log.Println("Migration complete.")
}
