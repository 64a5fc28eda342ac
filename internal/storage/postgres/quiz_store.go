package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quizforge/backend/internal/storage/models"
)

// Quiz, question, and submission persistence. All mutations are scoped by
// owner so a stray ID from another tenant surfaces as ErrForbidden.

func (c *Client) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	if err := c.db.WithContext(ctx).Create(quiz).Error; err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

func (c *Client) GetQuiz(ctx context.Context, userID, quizID string) (*models.Quiz, error) {
	var quiz models.Quiz
	err := c.db.WithContext(ctx).First(&quiz, "id = ? AND user_id = ?", quizID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return &quiz, nil
}

// GetPublishedQuiz fetches a quiz for a taker, regardless of owner.
func (c *Client) GetPublishedQuiz(ctx context.Context, quizID string) (*models.Quiz, error) {
	var quiz models.Quiz
	err := c.db.WithContext(ctx).
		First(&quiz, "id = ? AND status = ?", quizID, models.QuizStatusPublished).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return &quiz, nil
}

func (c *Client) ListQuizzes(ctx context.Context, userID string) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	err := c.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&quizzes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	return quizzes, nil
}

func (c *Client) UpdateQuizStatus(ctx context.Context, userID, quizID, status string) error {
	res := c.db.WithContext(ctx).Model(&models.Quiz{}).
		Where("id = ? AND user_id = ?", quizID, userID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to update quiz status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDraftQuestions replaces the denormalized generated-question payload.
func (c *Client) SetDraftQuestions(ctx context.Context, userID, quizID string, payload datatypes.JSON) error {
	res := c.db.WithContext(ctx).Model(&models.Quiz{}).
		Where("id = ? AND user_id = ?", quizID, userID).
		Updates(map[string]any{"draft_questions": payload, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to set draft questions: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) DeleteQuiz(ctx context.Context, userID, quizID string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", quizID, userID).Delete(&models.Quiz{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete quiz: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		// Questions go with the quiz for real; soft delete only applies to
		// removing single questions from a live quiz.
		if err := tx.Unscoped().Where("quiz_id = ?", quizID).
			Delete(&models.Question{}).Error; err != nil {
			return fmt.Errorf("failed to delete questions: %w", err)
		}
		return nil
	})
}

// CreateQuestions promotes a batch of questions in one transaction.
func (c *Client) CreateQuestions(ctx context.Context, questions []models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	if err := c.db.WithContext(ctx).CreateInBatches(&questions, 100).Error; err != nil {
		return fmt.Errorf("failed to create questions: %w", err)
	}
	return nil
}

// ListQuestions returns live questions in display order; soft-deleted rows
// are excluded by gorm.
func (c *Client) ListQuestions(ctx context.Context, quizID string) ([]models.Question, error) {
	var questions []models.Question
	err := c.db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("order_num ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

func (c *Client) GetQuestion(ctx context.Context, questionID string) (*models.Question, error) {
	var question models.Question
	err := c.db.WithContext(ctx).First(&question, "id = ?", questionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &question, nil
}

// SoftDeleteQuestion marks a question deleted. The owning quiz must belong
// to the requesting user.
func (c *Client) SoftDeleteQuestion(ctx context.Context, userID, questionID string) error {
	res := c.db.WithContext(ctx).
		Where("id = ? AND quiz_id IN (?)",
			questionID,
			c.db.Model(&models.Quiz{}).Select("id").Where("user_id = ?", userID),
		).
		Delete(&models.Question{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete question: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrForbidden
	}
	return nil
}

func (c *Client) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	if err := c.db.WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (c *Client) GetSubmission(ctx context.Context, submissionID string) (*models.Submission, error) {
	var submission models.Submission
	err := c.db.WithContext(ctx).
		Preload("Answers").
		First(&submission, "id = ?", submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &submission, nil
}

func (c *Client) ListSubmissions(ctx context.Context, quizID string) ([]models.Submission, error) {
	var submissions []models.Submission
	err := c.db.WithContext(ctx).
		Preload("Answers").
		Where("quiz_id = ?", quizID).
		Order("submitted_at DESC").
		Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, nil
}

// SetSuggestedGrade records the AI suggestion on an essay answer.
func (c *Client) SetSuggestedGrade(ctx context.Context, answerID string, score int, feedback string) error {
	res := c.db.WithContext(ctx).Model(&models.Answer{}).
		Where("id = ?", answerID).
		Updates(map[string]any{
			"suggested_score":    score,
			"suggested_feedback": feedback,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set suggested grade: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmGrade is the teacher's final word on an essay answer.
func (c *Client) ConfirmGrade(ctx context.Context, answerID string, score int) error {
	now := time.Now().UTC()
	res := c.db.WithContext(ctx).Model(&models.Answer{}).
		Where("id = ?", answerID).
		Updates(map[string]any{
			"final_score": score,
			"graded_at":   &now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to confirm grade: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
