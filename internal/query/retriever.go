package query

import (
	"context"
	"fmt"

	"github.com/support-agent/backend/internal/vector/milvus"
)

// Embedder converts text into a dense vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the similarity search surface of the vector store.
type VectorIndex interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]milvus.SearchResult, error)
}

// VectorRetriever embeds the query text and runs nearest-neighbor search
// against the knowledge base collection.
type VectorRetriever struct {
	embedder Embedder
	index    VectorIndex
}

func NewVectorRetriever(embedder Embedder, index VectorIndex) *VectorRetriever {
	return &VectorRetriever{embedder: embedder, index: index}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]milvus.SearchResult, error) {
	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.index.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	return results, nil
}
