package retrieval

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/metrics"
	"github.com/quizforge/backend/internal/storage/models"
	"github.com/quizforge/backend/pkg/logger"
	"github.com/quizforge/backend/pkg/utils"
)

// MaxContextLength is the hard character budget for sequential context. It
// is a conservative constant, independent of any model's token limit.
const MaxContextLength = 16000

const embeddingCacheTTL = 24 * time.Hour

// ChunkStore is the slice of the persistence layer the assembler reads.
type ChunkStore interface {
	ListChunks(ctx context.Context, filePath string) ([]models.DocumentChunk, error)
	MatchChunks(ctx context.Context, queryEmbedding []float32, userID string, limit int) ([]models.MatchResult, error)
}

// Embedder produces the query embedding for relevance mode.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache is optional; a nil cache disables it.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// Assembler builds prompt context from stored chunks. Every failure path
// degrades to empty context: callers proceed without supplementary
// material, they never fail the enclosing request over retrieval.
type Assembler struct {
	store    ChunkStore
	embedder Embedder
	cache    EmbeddingCache
}

func NewAssembler(store ChunkStore, embedder Embedder, cache EmbeddingCache) *Assembler {
	return &Assembler{
		store:    store,
		embedder: embedder,
		cache:    cache,
	}
}

// SequentialContext concatenates all chunks of a document in index order,
// joined by blank lines, hard-truncated to MaxContextLength characters.
func (a *Assembler) SequentialContext(ctx context.Context, filePath string) string {
	chunks, err := a.store.ListChunks(ctx, filePath)
	if err != nil {
		logger.Warn("Failed to list chunks for context", zap.String("file_path", filePath), zap.Error(err))
		return ""
	}
	if len(chunks) == 0 {
		return ""
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.ChunkText)
	}

	joined := strings.Join(texts, "\n\n")
	if len(joined) > MaxContextLength {
		// Back the cut up to a rune boundary so truncation never produces
		// invalid UTF-8.
		cut := MaxContextLength
		for cut > 0 && !utf8.RuneStart(joined[cut]) {
			cut--
		}
		joined = joined[:cut]
	}
	return joined
}

// RelevantContext embeds the query, runs the user-scoped similarity search,
// keeps only rows from the requested document (the search spans the user's
// whole corpus), and joins the survivors best match first. Size is bounded
// by the caller's k.
func (a *Assembler) RelevantContext(ctx context.Context, userID, filePath, query string, k int) string {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return ""
	}

	embedding := a.queryEmbedding(ctx, query)
	if embedding == nil {
		return ""
	}

	results, err := a.store.MatchChunks(ctx, embedding, userID, k)
	if err != nil {
		logger.Warn("Similarity search failed, proceeding without context", zap.Error(err))
		return ""
	}

	var texts []string
	for _, result := range results {
		if result.FilePath != filePath {
			continue
		}
		texts = append(texts, result.ChunkText)
	}
	if len(texts) == 0 {
		return ""
	}

	return strings.Join(texts, "\n\n")
}

func (a *Assembler) queryEmbedding(ctx context.Context, query string) []float32 {
	hash := utils.HashString(query)

	if a.cache != nil {
		if embedding, ok, err := a.cache.GetEmbedding(ctx, hash); err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := a.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		logger.Warn("Failed to embed query, proceeding without context", zap.Error(err))
		return nil
	}

	if a.cache != nil {
		if err := a.cache.SetEmbedding(ctx, hash, embedding, embeddingCacheTTL); err != nil {
			logger.Debug("Failed to cache query embedding", zap.Error(err))
		}
	}
	return embedding
}
