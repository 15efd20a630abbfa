package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/ingestion"
	"github.com/support-agent/backend/internal/storage/sqlite"
	"github.com/support-agent/backend/pkg/logger"
)

// VectorDeleter removes indexed chunks belonging to a source file.
type VectorDeleter interface {
	DeleteBySource(ctx context.Context, source string) error
}

type DocumentHandler struct {
	processor *ingestion.Processor
	db        *sqlite.Client
	vectors   VectorDeleter
}

func NewDocumentHandler(processor *ingestion.Processor, db *sqlite.Client, vectors VectorDeleter) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		db:        db,
		vectors:   vectors,
	}
}

// UploadDocuments ingests every file in the multipart form. Each file gets
// its own catalog row and outcome; one bad file does not fail the batch.
func (h *DocumentHandler) UploadDocuments(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A multipart file upload is required",
		})
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		fileHeaders = form.File["file"]
	}
	if len(fileHeaders) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one file is required",
		})
	}

	results := make([]fiber.Map, 0, len(fileHeaders))
	for _, fileHeader := range fileHeaders {
		content, err := readUpload(fileHeader)
		if err != nil {
			logger.Error("Failed to read uploaded file",
				zap.String("filename", fileHeader.Filename),
				zap.Error(err),
			)
			results = append(results, fiber.Map{
				"filename": fileHeader.Filename,
				"status":   fmt.Sprintf("error: %v", err),
				"chunks":   0,
			})
			continue
		}

		doc, err := h.processor.ProcessFile(c.Context(), fileHeader.Filename, content)
		if err != nil {
			logger.Error("Failed to process document", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to process document",
			})
		}

		results = append(results, fiber.Map{
			"file_id":  doc.ID,
			"filename": doc.Filename,
			"status":   doc.Status,
			"chunks":   doc.ChunkCount,
		})
	}

	return c.JSON(fiber.Map{
		"uploaded":  len(results),
		"documents": results,
	})
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	docs, err := h.db.ListKnowledgeDocuments()
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *DocumentHandler) GetStatus(c *fiber.Ctx) error {
	status, err := h.db.GetKnowledgeBaseStatus()
	if err != nil {
		logger.Error("Failed to read knowledge base status", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read knowledge base status",
		})
	}

	return c.JSON(status)
}

// DeleteDocument removes the catalog row and makes a best-effort sweep of
// the document's chunks from the vector store. The catalog delete is the
// authoritative one.
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	id := c.Params("id")

	doc, err := h.db.GetKnowledgeDocument(id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}
	if err != nil {
		logger.Error("Failed to load document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	vectorDeleted := true
	if err := h.vectors.DeleteBySource(c.Context(), doc.Filename); err != nil {
		logger.Warn("Failed to delete document chunks from vector store",
			zap.String("filename", doc.Filename),
			zap.Error(err),
		)
		vectorDeleted = false
	}

	if err := h.db.DeleteKnowledgeDocument(id); err != nil {
		logger.Error("Failed to delete document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	return c.JSON(fiber.Map{
		"status":               "deleted",
		"document_id":          id,
		"filename":             doc.Filename,
		"vector_store_deleted": vectorDeleted,
	})
}
