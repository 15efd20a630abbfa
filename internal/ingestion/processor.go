package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/metrics"
	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/internal/vector/milvus"
	"github.com/support-agent/backend/pkg/logger"
)

// Embedder produces embeddings for chunk batches.
type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex receives indexed chunks.
type VectorIndex interface {
	Insert(ctx context.Context, chunks []milvus.Chunk) error
}

// Catalog records one row per uploaded file.
type Catalog interface {
	InsertKnowledgeDocument(doc *models.KnowledgeDocument) error
}

// Processor ingests uploaded files: scratch write, extension-dispatched
// text extraction, overlapping-window chunking, embedding, vector indexing
// and a catalog row. The scratch file is removed unconditionally.
type Processor struct {
	catalog      Catalog
	vectorIndex  VectorIndex
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
	scratchDir   string
}

func NewProcessor(catalog Catalog, vectorIndex VectorIndex, embedder Embedder, chunkSize, chunkOverlap int, scratchDir string) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 200
	}
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}

	return &Processor{
		catalog:      catalog,
		vectorIndex:  vectorIndex,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		scratchDir:   scratchDir,
	}
}

// ProcessFile handles one uploaded file and always records a catalog row
// describing the outcome. Only the catalog write itself is a hard error.
func (p *Processor) ProcessFile(ctx context.Context, filename string, content []byte) (*models.KnowledgeDocument, error) {
	logger.Info("Processing uploaded file",
		zap.String("filename", filename),
		zap.Int("size", len(content)),
	)

	doc := &models.KnowledgeDocument{
		ID:         uuid.New().String(),
		Filename:   filename,
		FileSize:   int64(len(content)),
		UploadDate: time.Now(),
	}

	doc.Status, doc.ChunkCount = p.ingest(ctx, doc.ID, filename, content)

	// Status strings carrying error detail collapse to one label value.
	statusLabel := doc.Status
	if strings.HasPrefix(statusLabel, "error:") {
		statusLabel = "error"
	}
	metrics.DocumentsProcessed.WithLabelValues(statusLabel).Inc()

	if err := p.catalog.InsertKnowledgeDocument(doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func (p *Processor) ingest(ctx context.Context, docID, filename string, content []byte) (status string, chunkCount int) {
	if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
		return fmt.Sprintf("error: %v", err), 0
	}

	scratchPath := filepath.Join(p.scratchDir, filepath.Base(filename))
	if err := os.WriteFile(scratchPath, content, 0o644); err != nil {
		return fmt.Sprintf("error: %v", err), 0
	}
	// Success or failure, the scratch file does not outlive this call.
	defer os.Remove(scratchPath)

	text, err := loadDocument(scratchPath)
	if errors.Is(err, ErrUnsupportedFileType) {
		logger.Warn("Unsupported file type", zap.String("filename", filename))
		return "unsupported", 0
	}
	if err != nil {
		logger.Error("Failed to load document", zap.String("filename", filename), zap.Error(err))
		return fmt.Sprintf("error: %v", err), 0
	}

	chunks := ChunkText(text, p.chunkSize, p.chunkOverlap)
	if len(chunks) == 0 {
		logger.Warn("No text extracted", zap.String("filename", filename))
		return "no_content", 0
	}

	logger.Info("Document chunked", zap.String("filename", filename), zap.Int("chunks", len(chunks)))

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		logger.Error("Failed to embed chunks", zap.String("filename", filename), zap.Error(err))
		return "failed", 0
	}
	if len(embeddings) != len(chunks) {
		logger.Error("Embedding count mismatch",
			zap.Int("chunks", len(chunks)),
			zap.Int("embeddings", len(embeddings)),
		)
		return "failed", 0
	}

	vectorChunks := make([]milvus.Chunk, 0, len(chunks))
	now := time.Now()
	for i, chunkText := range chunks {
		vectorChunks = append(vectorChunks, milvus.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", docID, i),
			Embedding:  embeddings[i],
			Text:       chunkText,
			Source:     filename,
			ChunkIndex: i,
			Timestamp:  now,
		})
	}

	if err := p.vectorIndex.Insert(ctx, vectorChunks); err != nil {
		logger.Error("Failed to index chunks", zap.String("filename", filename), zap.Error(err))
		return "failed", 0
	}

	return "processed", len(vectorChunks)
}
