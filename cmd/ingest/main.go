// Command ingest indexes legislation text files for vector search. Each
// *.txt file under -dir is one document; its first line is the citation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"legal-assistant-be/internal/config"
	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/internal/repository/implementation"
	"legal-assistant-be/internal/service"
	"legal-assistant-be/pkg/database"
	"legal-assistant-be/pkg/embedding"
)

func main() {
	dir := flag.String("dir", "legislation", "directory of .txt files")
	jurisdiction := flag.String("jurisdiction", "", "jurisdiction code for every file (NSW, QLD, FEDERAL)")
	sourceBase := flag.String("source", "", "base URL recorded as each document's source")
	flag.Parse()

	if *jurisdiction == "" {
		log.Fatal("Error: -jurisdiction is required")
	}

	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}
	embedder, err := embedding.NewProvider(cfg.Ai.EmbeddingProvider, cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel, cfg.Keys.Gemini)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	svc := service.NewIngestService(
		implementation.NewLegalChunkRepository(db),
		embedder,
		logger.NewZapLogger(cfg.App.LogFilePath, false),
	)

	files, err := filepath.Glob(filepath.Join(*dir, "*.txt"))
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("Error: no .txt files in %s", *dir)
	}

	ctx := context.Background()
	total, failed := 0, 0
	for _, path := range files {
		doc, err := readDocument(path, *jurisdiction, *sourceBase)
		if err != nil {
			log.Printf("[WARN] %s: %v", path, err)
			failed++
			continue
		}
		n, err := svc.Ingest(ctx, doc)
		if err != nil {
			log.Printf("[WARN] %s: %v", path, err)
			failed++
			continue
		}
		log.Printf("[INFO] %s: %d chunks", doc.Citation, n)
		total += n
	}

	log.Printf("Done: %d chunks from %d files, %d failed", total, len(files)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func readDocument(path, jurisdiction, sourceBase string) (service.LegislationDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return service.LegislationDocument{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var citation string
	var body strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if citation == "" && strings.TrimSpace(line) != "" {
			citation = strings.TrimSpace(line)
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return service.LegislationDocument{}, err
	}
	if citation == "" {
		return service.LegislationDocument{}, fmt.Errorf("empty file")
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc := service.LegislationDocument{
		DocumentId:   strings.ToLower(jurisdiction) + "/" + id,
		Citation:     citation,
		Jurisdiction: jurisdiction,
		Text:         body.String(),
	}
	if sourceBase != "" {
		doc.SourceUrl = strings.TrimRight(sourceBase, "/") + "/" + id
	}
	return doc, nil
}
