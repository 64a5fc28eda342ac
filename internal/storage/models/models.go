package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Quiz lifecycle states.
const (
	QuizStatusDraft     = "draft"
	QuizStatusPublished = "published"
	QuizStatusArchived  = "archived"
)

// Question kinds.
const (
	QuestionKindMultipleChoice = "multiple_choice"
	QuestionKindEssay          = "essay"
)

// Document is one ingested file. FilePath is the object storage key and the
// stable identifier the rest of the system refers to.
type Document struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	FilePath   string `gorm:"uniqueIndex;not null"`
	FileName   string `gorm:"not null"`
	FileSize   int64
	MimeType   string
	ChunkCount int
	// Identifier assigned by the OCR provider when remote extraction was used.
	OCRFileID string
	CreatedAt time.Time `gorm:"not null"`
}

// DocumentChunk holds one ordered slice of a document's text. Chunk indices
// are contiguous from 0 and never reordered after ingestion.
type DocumentChunk struct {
	ID         string           `gorm:"primaryKey"`
	FilePath   string           `gorm:"not null;index"`
	UserID     string           `gorm:"not null;index"`
	ChunkIndex int              `gorm:"not null"`
	ChunkText  string           `gorm:"type:text;not null"`
	Embedding  *pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt  time.Time        `gorm:"not null"`
}

// Quiz holds generated questions as a denormalized jsonb payload while in
// draft; promotion moves them into Question rows. SourceDocumentPath is a
// weak reference: deleting the document does not touch the quiz.
type Quiz struct {
	ID                 string         `gorm:"primaryKey"`
	UserID             string         `gorm:"not null;index"`
	Name               string         `gorm:"not null"`
	Description        string
	Status             string         `gorm:"not null;default:draft"`
	SourceDocumentPath string
	DraftQuestions     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt          time.Time      `gorm:"not null"`
	UpdatedAt          time.Time
}

// Question is soft-deleted: removing one from a quiz sets DeletedAt so
// existing submissions keep a resolvable target.
type Question struct {
	ID            string         `gorm:"primaryKey"`
	QuizID        string         `gorm:"not null;index"`
	Kind          string         `gorm:"not null"`
	Prompt        string         `gorm:"type:text;not null"`
	OrderNum      int            `gorm:"not null"`
	AudioPrompt   bool
	VoiceAnswer   bool
	Options       datatypes.JSON `gorm:"type:jsonb"`
	CorrectAnswer *int
	Rubric        string         `gorm:"type:text"`
	MaxPoints     int
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

type Submission struct {
	ID          string    `gorm:"primaryKey"`
	QuizID      string    `gorm:"not null;index"`
	UserID      string    `gorm:"not null;index"`
	SubmittedAt time.Time `gorm:"not null"`
	Answers     []Answer  `gorm:"foreignKey:SubmissionID"`
}

// Answer carries the AI-suggested essay grade until a teacher confirms it
// into FinalScore.
type Answer struct {
	ID                string `gorm:"primaryKey"`
	SubmissionID      string `gorm:"not null;index"`
	QuestionID        string `gorm:"not null"`
	Response          string `gorm:"type:text"`
	SuggestedScore    *int
	SuggestedFeedback string `gorm:"type:text"`
	FinalScore        *int
	GradedAt          *time.Time
}

// MatchResult is one row returned by the match_document_chunks function,
// ordered by descending similarity.
type MatchResult struct {
	ChunkText  string  `gorm:"column:chunk_text"`
	FilePath   string  `gorm:"column:file_path"`
	Similarity float64 `gorm:"column:similarity"`
}
