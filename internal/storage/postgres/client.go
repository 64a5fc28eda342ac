package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quizforge/backend/internal/storage/models"
	"github.com/quizforge/backend/pkg/logger"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden is returned when a mutation targets a row owned by
	// another user.
	ErrForbidden = errors.New("not owned by requesting user")
)

type Client struct {
	db           *gorm.DB
	embeddingDim int
}

func NewClient(dsn string, embeddingDim int) (*Client, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("Postgres client initialized", zap.Int("embedding_dim", embeddingDim))

	return &Client{db: db, embeddingDim: embeddingDim}, nil
}

// NewClientWithDB wraps an existing gorm handle. Used by tests.
func NewClientWithDB(db *gorm.DB, embeddingDim int) *Client {
	return &Client{db: db, embeddingDim: embeddingDim}
}

func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertDocument stores the document row and its chunks in one transaction.
// Chunk indices are assigned here, contiguous from 0.
func (c *Client) InsertDocument(ctx context.Context, doc *models.Document, chunks []models.DocumentChunk) error {
	doc.ChunkCount = len(chunks)
	for i := range chunks {
		chunks[i].FilePath = doc.FilePath
		chunks[i].UserID = doc.UserID
		chunks[i].ChunkIndex = i
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(&chunks, 200).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted",
		zap.String("file_path", doc.FilePath),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// ListChunks returns all chunks of a document ordered by chunk index.
func (c *Client) ListChunks(ctx context.Context, filePath string) ([]models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	err := c.db.WithContext(ctx).
		Where("file_path = ?", filePath).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// GetDocument returns document metadata, or ErrNotFound.
func (c *Client) GetDocument(ctx context.Context, filePath string) (*models.Document, error) {
	var doc models.Document
	err := c.db.WithContext(ctx).First(&doc, "file_path = ?", filePath).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// ListUserDocuments returns a user's documents, most recent first.
func (c *Client) ListUserDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	var docs []models.Document
	err := c.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// DeleteDocumentRows removes the document and its chunks. The backing
// storage object is the caller's responsibility; see ingestion.Processor.
func (c *Client) DeleteDocumentRows(ctx context.Context, userID, filePath string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("file_path = ? AND user_id = ?", filePath, userID).
			Delete(&models.Document{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete document row: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("file_path = ? AND user_id = ?", filePath, userID).
			Delete(&models.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete chunk rows: %w", err)
		}
		return nil
	})
}

// MatchChunks invokes the match_document_chunks SQL function: nearest
// chunks for the user's corpus, best match first.
func (c *Client) MatchChunks(ctx context.Context, queryEmbedding []float32, userID string, limit int) ([]models.MatchResult, error) {
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if c.embeddingDim > 0 && len(queryEmbedding) != c.embeddingDim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(queryEmbedding), c.embeddingDim)
	}
	if limit <= 0 {
		return []models.MatchResult{}, nil
	}

	var results []models.MatchResult
	err := c.db.WithContext(ctx).
		Raw("SELECT chunk_text, file_path, similarity FROM match_document_chunks(?, ?, ?)",
			pgvector.NewVector(queryEmbedding), userID, limit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to match chunks: %w", err)
	}

	logger.Debug("Similarity search completed",
		zap.String("user_id", userID),
		zap.Int("limit", limit),
		zap.Int("results", len(results)),
	)
	return results, nil
}
