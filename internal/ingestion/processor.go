package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/metrics"
	"github.com/quizforge/backend/internal/objectstore"
	"github.com/quizforge/backend/internal/ocr"
	"github.com/quizforge/backend/internal/storage/models"
	"github.com/quizforge/backend/internal/storage/postgres"
	"github.com/quizforge/backend/pkg/logger"
	"github.com/quizforge/backend/pkg/utils"
)

// ErrEmptyDocument is returned when neither local extraction nor OCR yields
// any text.
var ErrEmptyDocument = errors.New("no text extracted from document")

// ErrPartialDeletion marks a delete where the chunk rows are gone but the
// storage object could not be removed. Callers must not report success.
var ErrPartialDeletion = errors.New("document partially deleted")

// Embedder produces vectors for chunk texts.
type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type Processor struct {
	db           *postgres.Client
	objects      objectstore.Store
	embedder     Embedder
	ocrClient    *ocr.Client
	maxChunkSize int
	chunkOverlap int
}

func NewProcessor(db *postgres.Client, objects objectstore.Store, embedder Embedder, ocrClient *ocr.Client, maxChunkSize, chunkOverlap int) *Processor {
	if maxChunkSize <= 0 {
		maxChunkSize = 1000
	}
	return &Processor{
		db:           db,
		objects:      objects,
		embedder:     embedder,
		ocrClient:    ocrClient,
		maxChunkSize: maxChunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// ProcessDocument stores the uploaded file, extracts its text (locally when
// the format has a text layer, via the OCR provider otherwise), chunks it
// sentence-aware, embeds the chunks, and persists everything.
func (p *Processor) ProcessDocument(ctx context.Context, userID, fileName, mimeType string, data []byte) (*models.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("uploaded file is empty")
	}

	filePath := path.Join(userID, utils.HashContent(data)+"-"+fileName)

	logger.Info("Processing document",
		zap.String("user_id", userID),
		zap.String("file_path", filePath),
		zap.String("mime_type", mimeType),
	)

	if err := p.objects.Put(ctx, filePath, data, mimeType); err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}

	text, ocrFileID, err := p.extract(ctx, fileName, mimeType, data)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrEmptyDocument
	}

	texts := ChunkBySentence(text, p.maxChunkSize, p.chunkOverlap)
	logger.Info("Document chunked", zap.Int("chunks", len(texts)))

	embeddings := p.embed(ctx, texts)

	now := time.Now().UTC()
	chunks := make([]models.DocumentChunk, len(texts))
	for i, chunkText := range texts {
		chunks[i] = models.DocumentChunk{
			ID:        uuid.New().String(),
			ChunkText: chunkText,
			CreatedAt: now,
		}
		if embeddings != nil {
			vec := pgvector.NewVector(embeddings[i])
			chunks[i].Embedding = &vec
		}
	}

	doc := &models.Document{
		ID:        uuid.New().String(),
		UserID:    userID,
		FilePath:  filePath,
		FileName:  fileName,
		FileSize:  int64(len(data)),
		MimeType:  mimeType,
		OCRFileID: ocrFileID,
		CreatedAt: now,
	}

	if err := p.db.InsertDocument(ctx, doc, chunks); err != nil {
		return nil, err
	}

	metrics.DocumentsIngested.Inc()
	metrics.ChunksPerDocument.Observe(float64(len(chunks)))

	logger.Info("Document processed",
		zap.String("file_path", filePath),
		zap.Int("chunks", len(chunks)),
	)
	return doc, nil
}

// DeleteDocument removes the chunk rows and the backing storage object. The
// two steps fail distinctly: a row failure leaves everything in place, an
// object failure after row deletion surfaces as ErrPartialDeletion.
func (p *Processor) DeleteDocument(ctx context.Context, userID, filePath string) error {
	if err := p.db.DeleteDocumentRows(ctx, userID, filePath); err != nil {
		return fmt.Errorf("document rows not deleted: %w", err)
	}

	if err := p.objects.Delete(ctx, filePath); err != nil {
		logger.Error("Storage object left behind after row deletion",
			zap.String("file_path", filePath),
			zap.Error(err),
		)
		return fmt.Errorf("%w: rows removed but storage object remains: %v", ErrPartialDeletion, err)
	}

	logger.Info("Document deleted", zap.String("file_path", filePath))
	return nil
}

// DownloadURL returns a short-lived link to the stored original file.
func (p *Processor) DownloadURL(ctx context.Context, userID, filePath string) (string, error) {
	doc, err := p.db.GetDocument(ctx, filePath)
	if err != nil {
		return "", err
	}
	if doc.UserID != userID {
		return "", postgres.ErrNotFound
	}
	return p.objects.PresignGet(ctx, filePath, 15*time.Minute)
}

func (p *Processor) extract(ctx context.Context, fileName, mimeType string, data []byte) (string, string, error) {
	text, err := ExtractText(mimeType, data)
	if err == nil && text != "" {
		return text, "", nil
	}
	if err != nil && !errors.Is(err, ErrUnsupportedType) {
		logger.Warn("Local extraction failed, falling back to OCR", zap.Error(err))
	}

	result, ocrErr := p.ocrClient.Extract(ctx, fileName, mimeType, data)
	if ocrErr != nil {
		return "", "", fmt.Errorf("ocr extraction failed: %w", ocrErr)
	}
	return result.Text, result.FileID, nil
}

// embed is best-effort: chunks without vectors are still stored and usable
// for sequential context, they just never match a similarity search.
func (p *Processor) embed(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		logger.Warn("Failed to embed chunks, storing without vectors", zap.Error(err))
		return nil
	}
	if len(embeddings) != len(texts) {
		logger.Warn("Embedding count mismatch, storing without vectors",
			zap.Int("got", len(embeddings)),
			zap.Int("want", len(texts)),
		)
		return nil
	}
	return embeddings
}
