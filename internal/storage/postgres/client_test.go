package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quizforge/backend/pkg/logger"
)

func init() {
	logger.Init("error", "console", "stdout")
}

func newMockClient(t *testing.T, embeddingDim int) (*Client, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open gorm: %v", err)
	}

	return NewClientWithDB(db, embeddingDim), mock
}

func TestMatchChunksRejectsEmptyEmbedding(t *testing.T) {
	client, _ := newMockClient(t, 3)
	if _, err := client.MatchChunks(context.Background(), nil, "u1", 5); err == nil {
		t.Errorf("expected error for empty embedding")
	}
}

func TestMatchChunksRejectsDimensionMismatch(t *testing.T) {
	client, _ := newMockClient(t, 3)
	if _, err := client.MatchChunks(context.Background(), []float32{1, 2}, "u1", 5); err == nil {
		t.Errorf("expected error for dimension mismatch")
	}
}

func TestMatchChunksZeroLimitSkipsQuery(t *testing.T) {
	client, mock := newMockClient(t, 3)

	results, err := client.MatchChunks(context.Background(), []float32{1, 2, 3}, "u1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}

func TestMatchChunksCallsStoredFunction(t *testing.T) {
	client, mock := newMockClient(t, 3)

	mock.ExpectQuery(`SELECT chunk_text, file_path, similarity FROM match_document_chunks`).
		WithArgs(sqlmock.AnyArg(), "u1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"chunk_text", "file_path", "similarity"}).
			AddRow("best chunk", "u1/doc.pdf", 0.91).
			AddRow("second chunk", "u1/doc.pdf", 0.84))

	results, err := client.MatchChunks(context.Background(), []float32{1, 2, 3}, "u1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ChunkText != "best chunk" || results[0].Similarity != 0.91 {
		t.Errorf("first result = %+v", results[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	client, mock := newMockClient(t, 3)

	mock.ExpectQuery(`SELECT \* FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "file_path"}))

	_, err := client.GetDocument(context.Background(), "u1/missing.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListChunksOrdersByIndex(t *testing.T) {
	client, mock := newMockClient(t, 3)

	mock.ExpectQuery(`SELECT \* FROM "document_chunks" WHERE file_path = .+ ORDER BY chunk_index ASC`).
		WithArgs("u1/doc.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_path", "chunk_index", "chunk_text"}).
			AddRow("c0", "u1/doc.pdf", 0, "first").
			AddRow("c1", "u1/doc.pdf", 1, "second"))

	chunks, err := client.ListChunks(context.Background(), "u1/doc.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 || chunks[0].ChunkText != "first" {
		t.Errorf("chunks = %+v", chunks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteDocumentRowsNotFound(t *testing.T) {
	client, mock := newMockClient(t, 3)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "documents"`).
		WithArgs("u1/doc.pdf", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := client.DeleteDocumentRows(context.Background(), "u1", "u1/doc.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteDocumentRowsRemovesChunks(t *testing.T) {
	client, mock := newMockClient(t, 3)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "documents"`).
		WithArgs("u1/doc.pdf", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "document_chunks"`).
		WithArgs("u1/doc.pdf", "u1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	if err := client.DeleteDocumentRows(context.Background(), "u1", "u1/doc.pdf"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateQuizStatusNotFound(t *testing.T) {
	client, mock := newMockClient(t, 3)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "quizzes"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := client.UpdateQuizStatus(context.Background(), "u1", "quiz-1", "published")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
