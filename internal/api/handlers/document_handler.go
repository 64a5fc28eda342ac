package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/ingestion"
	"github.com/quizforge/backend/internal/middleware/auth"
	"github.com/quizforge/backend/internal/storage/postgres"
	"github.com/quizforge/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	db        *postgres.Client
}

func NewDocumentHandler(processor *ingestion.Processor, db *postgres.Client) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		db:        db,
	}
}

// UploadDocument ingests a multipart file upload: storage, text
// extraction, chunking, embedding, persistence.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	userID := auth.UserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A file upload is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded file",
		})
	}

	mimeType := fileHeader.Header.Get(fiber.HeaderContentType)

	doc, err := h.processor.ProcessDocument(c.Context(), userID, fileHeader.Filename, mimeType, data)
	if err != nil {
		if errors.Is(err, ingestion.ErrEmptyDocument) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "No text could be extracted from the document",
			})
		}
		logger.Error("Failed to process document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          doc.ID,
		"file_path":   doc.FilePath,
		"file_name":   doc.FileName,
		"chunk_count": doc.ChunkCount,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	documents, err := h.db.ListUserDocuments(c.Context(), auth.UserID(c))
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{
		"documents": documents,
		"count":     len(documents),
	})
}

// DownloadDocument redirects callers to a short-lived presigned URL for
// the stored original file.
func (h *DocumentHandler) DownloadDocument(c *fiber.Ctx) error {
	filePath := c.Query("file_path")
	if filePath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file_path query parameter is required",
		})
	}

	url, err := h.processor.DownloadURL(c.Context(), auth.UserID(c), filePath)
	if errors.Is(err, postgres.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}
	if err != nil {
		logger.Error("Failed to presign document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate download link",
		})
	}

	return c.JSON(fiber.Map{
		"url": url,
	})
}

// DeleteDocument removes the document's rows and its storage object. A
// partial failure, rows gone but object left behind, is reported as such
// instead of pretending the delete succeeded.
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	filePath := c.Query("file_path")
	if filePath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file_path query parameter is required",
		})
	}

	err := h.processor.DeleteDocument(c.Context(), auth.UserID(c), filePath)
	if errors.Is(err, postgres.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}
	if errors.Is(err, ingestion.ErrPartialDeletion) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Document records removed but the stored file could not be deleted",
		})
	}
	if err != nil {
		logger.Error("Failed to delete document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Document deleted",
	})
}
