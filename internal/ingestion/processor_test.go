package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/internal/vector/milvus"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{0.1, 0.2, 0.3}
	}
	return embeddings, nil
}

type fakeVectorIndex struct {
	inserted []milvus.Chunk
	err      error
}

func (f *fakeVectorIndex) Insert(ctx context.Context, chunks []milvus.Chunk) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, chunks...)
	return nil
}

type fakeCatalog struct {
	docs []*models.KnowledgeDocument
	err  error
}

func (f *fakeCatalog) InsertKnowledgeDocument(doc *models.KnowledgeDocument) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

func newTestProcessor(t *testing.T, catalog *fakeCatalog, index *fakeVectorIndex, embedder *fakeEmbedder) *Processor {
	t.Helper()
	return NewProcessor(catalog, index, embedder, 100, 20, t.TempDir())
}

func TestProcessFilePlainText(t *testing.T) {
	catalog := &fakeCatalog{}
	index := &fakeVectorIndex{}
	p := newTestProcessor(t, catalog, index, &fakeEmbedder{})

	content := []byte(strings.Repeat("support answer text. ", 20))
	doc, err := p.ProcessFile(context.Background(), "faq.txt", content)
	require.NoError(t, err)

	assert.Equal(t, "processed", doc.Status)
	assert.Equal(t, doc.ChunkCount, len(index.inserted))
	assert.Greater(t, doc.ChunkCount, 1)

	require.Len(t, catalog.docs, 1)
	assert.Equal(t, "faq.txt", catalog.docs[0].Filename)

	for i, chunk := range index.inserted {
		assert.Equal(t, "faq.txt", chunk.Source)
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Contains(t, chunk.ID, doc.ID)
	}
}

func TestProcessFileUnsupportedExtension(t *testing.T) {
	catalog := &fakeCatalog{}
	index := &fakeVectorIndex{}
	p := newTestProcessor(t, catalog, index, &fakeEmbedder{})

	doc, err := p.ProcessFile(context.Background(), "image.png", []byte{0x89, 0x50})
	require.NoError(t, err)

	// The catalog row is recorded even though nothing was indexed.
	assert.Equal(t, "unsupported", doc.Status)
	assert.Zero(t, doc.ChunkCount)
	assert.Empty(t, index.inserted)
	require.Len(t, catalog.docs, 1)
}

func TestProcessFileEmptyContent(t *testing.T) {
	catalog := &fakeCatalog{}
	p := newTestProcessor(t, catalog, &fakeVectorIndex{}, &fakeEmbedder{})

	doc, err := p.ProcessFile(context.Background(), "empty.txt", []byte("   \n  "))
	require.NoError(t, err)
	assert.Equal(t, "no_content", doc.Status)
	assert.Zero(t, doc.ChunkCount)
}

func TestProcessFileEmbeddingFailure(t *testing.T) {
	catalog := &fakeCatalog{}
	p := newTestProcessor(t, catalog, &fakeVectorIndex{}, &fakeEmbedder{err: errors.New("api down")})

	doc, err := p.ProcessFile(context.Background(), "faq.txt", []byte("some support text"))
	require.NoError(t, err)
	assert.Equal(t, "failed", doc.Status)
	require.Len(t, catalog.docs, 1)
}

func TestProcessFileIndexFailure(t *testing.T) {
	catalog := &fakeCatalog{}
	index := &fakeVectorIndex{err: errors.New("milvus unavailable")}
	p := newTestProcessor(t, catalog, index, &fakeEmbedder{})

	doc, err := p.ProcessFile(context.Background(), "faq.txt", []byte("some support text"))
	require.NoError(t, err)
	assert.Equal(t, "failed", doc.Status)
}

func TestProcessFileCatalogFailureIsFatal(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("disk full")}
	p := newTestProcessor(t, catalog, &fakeVectorIndex{}, &fakeEmbedder{})

	_, err := p.ProcessFile(context.Background(), "faq.txt", []byte("text"))
	assert.Error(t, err)
}

func TestLoadDocumentDispatch(t *testing.T) {
	_, err := loadDocument("/tmp/whatever.docx")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}
