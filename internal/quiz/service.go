package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/quizforge/backend/internal/generation"
	"github.com/quizforge/backend/internal/metrics"
	"github.com/quizforge/backend/internal/storage/models"
	"github.com/quizforge/backend/internal/storage/postgres"
	"github.com/quizforge/backend/pkg/logger"
)

// ErrInvalidTransition is returned for lifecycle moves outside
// draft -> published -> archived.
var ErrInvalidTransition = errors.New("invalid quiz status transition")

// ErrNotPublished is returned when answers are submitted to a quiz that is
// not accepting them.
var ErrNotPublished = errors.New("quiz is not published")

// ErrScoreOutOfRange is returned when a confirmed grade falls outside the
// question's point range.
var ErrScoreOutOfRange = errors.New("score out of range")

// Store is the persistence surface the service needs.
type Store interface {
	CreateQuiz(ctx context.Context, quiz *models.Quiz) error
	GetQuiz(ctx context.Context, userID, quizID string) (*models.Quiz, error)
	GetPublishedQuiz(ctx context.Context, quizID string) (*models.Quiz, error)
	ListQuizzes(ctx context.Context, userID string) ([]models.Quiz, error)
	UpdateQuizStatus(ctx context.Context, userID, quizID, status string) error
	SetDraftQuestions(ctx context.Context, userID, quizID string, payload datatypes.JSON) error
	DeleteQuiz(ctx context.Context, userID, quizID string) error
	CreateQuestions(ctx context.Context, questions []models.Question) error
	ListQuestions(ctx context.Context, quizID string) ([]models.Question, error)
	GetQuestion(ctx context.Context, questionID string) (*models.Question, error)
	SoftDeleteQuestion(ctx context.Context, userID, questionID string) error
	CreateSubmission(ctx context.Context, submission *models.Submission) error
	GetSubmission(ctx context.Context, submissionID string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, quizID string) ([]models.Submission, error)
	SetSuggestedGrade(ctx context.Context, answerID string, score int, feedback string) error
	ConfirmGrade(ctx context.Context, answerID string, score int) error
}

// ContextAssembler builds prompt context from an ingested document.
type ContextAssembler interface {
	SequentialContext(ctx context.Context, filePath string) string
	RelevantContext(ctx context.Context, userID, filePath, query string, k int) string
}

// Generator is the AI generation surface the service needs.
type Generator interface {
	GenerateQuestions(ctx context.Context, docContext string, params generation.QuestionParams) ([]generation.GeneratedQuestion, error)
	GenerateRubric(ctx context.Context, docContext, essayPrompt string, maxPoints int) (string, error)
	SuggestEssayGrade(ctx context.Context, req generation.GradingRequest) (generation.GradeSuggestion, error)
}

// relevantChunkCount is how many similarity matches rubric generation and
// grading pull in for context.
const relevantChunkCount = 5

// Service owns the quiz lifecycle: creation, AI question generation into a
// draft payload, promotion to real question rows, publication, submissions,
// and essay grading.
type Service struct {
	store     Store
	assembler ContextAssembler
	generator Generator
}

func NewService(store Store, assembler ContextAssembler, generator Generator) *Service {
	return &Service{
		store:     store,
		assembler: assembler,
		generator: generator,
	}
}

type CreateQuizInput struct {
	Name               string
	Description        string
	SourceDocumentPath string
}

func (s *Service) CreateQuiz(ctx context.Context, userID string, input CreateQuizInput) (*models.Quiz, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("quiz name is required")
	}

	now := time.Now().UTC()
	quiz := &models.Quiz{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Name:               input.Name,
		Description:        input.Description,
		Status:             models.QuizStatusDraft,
		SourceDocumentPath: input.SourceDocumentPath,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateQuiz(ctx, quiz); err != nil {
		return nil, err
	}

	logger.Info("Quiz created", zap.String("quiz_id", quiz.ID), zap.String("user_id", userID))
	return quiz, nil
}

func (s *Service) GetQuiz(ctx context.Context, userID, quizID string) (*models.Quiz, error) {
	return s.store.GetQuiz(ctx, userID, quizID)
}

func (s *Service) ListQuizzes(ctx context.Context, userID string) ([]models.Quiz, error) {
	return s.store.ListQuizzes(ctx, userID)
}

func (s *Service) DeleteQuiz(ctx context.Context, userID, quizID string) error {
	return s.store.DeleteQuiz(ctx, userID, quizID)
}

// GenerateQuestions produces draft questions for a quiz from its source
// document. Sequential context keeps the document's narrative order, which
// reads better for question writing than relevance-ranked fragments. The
// result lands in the quiz's draft payload, not in question rows.
func (s *Service) GenerateQuestions(ctx context.Context, userID, quizID string, params generation.QuestionParams) ([]generation.GeneratedQuestion, error) {
	quiz, err := s.store.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.Status != models.QuizStatusDraft {
		return nil, fmt.Errorf("%w: questions can only be generated on a draft quiz", ErrInvalidTransition)
	}

	var docContext string
	if quiz.SourceDocumentPath != "" {
		docContext = s.assembler.SequentialContext(ctx, quiz.SourceDocumentPath)
	}

	questions, err := s.generator.GenerateQuestions(ctx, docContext, params)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode draft questions: %w", err)
	}
	if err := s.store.SetDraftQuestions(ctx, userID, quizID, payload); err != nil {
		return nil, err
	}

	return questions, nil
}

// PromoteDraftQuestions turns the draft payload into Question rows and
// clears the draft. Order numbers continue after any existing questions.
func (s *Service) PromoteDraftQuestions(ctx context.Context, userID, quizID string) ([]models.Question, error) {
	quiz, err := s.store.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.DraftQuestions) == 0 {
		return nil, fmt.Errorf("quiz has no draft questions")
	}

	var drafts []generation.GeneratedQuestion
	if err := json.Unmarshal(quiz.DraftQuestions, &drafts); err != nil {
		return nil, fmt.Errorf("failed to decode draft questions: %w", err)
	}

	existing, err := s.store.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	questions := make([]models.Question, len(drafts))
	for i, draft := range drafts {
		options, err := json.Marshal(draft.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to encode options: %w", err)
		}
		correct := draft.CorrectAnswer
		questions[i] = models.Question{
			ID:            uuid.New().String(),
			QuizID:        quizID,
			Kind:          models.QuestionKindMultipleChoice,
			Prompt:        draft.Question,
			OrderNum:      len(existing) + i,
			Options:       options,
			CorrectAnswer: &correct,
			MaxPoints:     1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if err := s.store.CreateQuestions(ctx, questions); err != nil {
		return nil, err
	}
	if err := s.store.SetDraftQuestions(ctx, userID, quizID, datatypes.JSON("null")); err != nil {
		logger.Warn("Failed to clear draft questions after promotion",
			zap.String("quiz_id", quizID), zap.Error(err))
	}

	logger.Info("Draft questions promoted",
		zap.String("quiz_id", quizID),
		zap.Int("count", len(questions)),
	)
	return questions, nil
}

type EssayQuestionInput struct {
	Prompt      string
	MaxPoints   int
	Rubric      string
	AudioPrompt bool
	VoiceAnswer bool
}

// AddEssayQuestion appends an essay question. When no rubric is supplied
// one is generated from the chunks most relevant to the prompt.
func (s *Service) AddEssayQuestion(ctx context.Context, userID, quizID string, input EssayQuestionInput) (*models.Question, error) {
	quiz, err := s.store.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if input.Prompt == "" {
		return nil, fmt.Errorf("question prompt is required")
	}
	if input.MaxPoints <= 0 {
		input.MaxPoints = 10
	}

	rubric := input.Rubric
	if rubric == "" {
		var docContext string
		if quiz.SourceDocumentPath != "" {
			docContext = s.assembler.RelevantContext(ctx, userID, quiz.SourceDocumentPath, input.Prompt, relevantChunkCount)
		}
		rubric, err = s.generator.GenerateRubric(ctx, docContext, input.Prompt, input.MaxPoints)
		if err != nil {
			return nil, err
		}
	}

	existing, err := s.store.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	question := &models.Question{
		ID:          uuid.New().String(),
		QuizID:      quizID,
		Kind:        models.QuestionKindEssay,
		Prompt:      input.Prompt,
		OrderNum:    len(existing),
		AudioPrompt: input.AudioPrompt,
		VoiceAnswer: input.VoiceAnswer,
		Rubric:      rubric,
		MaxPoints:   input.MaxPoints,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateQuestions(ctx, []models.Question{*question}); err != nil {
		return nil, err
	}
	return question, nil
}

func (s *Service) ListQuestions(ctx context.Context, userID, quizID string) ([]models.Question, error) {
	if _, err := s.store.GetQuiz(ctx, userID, quizID); err != nil {
		return nil, err
	}
	return s.store.ListQuestions(ctx, quizID)
}

func (s *Service) RemoveQuestion(ctx context.Context, userID, questionID string) error {
	return s.store.SoftDeleteQuestion(ctx, userID, questionID)
}

// Publish moves a draft quiz to published. Any other starting state fails.
func (s *Service) Publish(ctx context.Context, userID, quizID string) error {
	return s.transition(ctx, userID, quizID, models.QuizStatusDraft, models.QuizStatusPublished)
}

// Archive moves a published quiz to archived.
func (s *Service) Archive(ctx context.Context, userID, quizID string) error {
	return s.transition(ctx, userID, quizID, models.QuizStatusPublished, models.QuizStatusArchived)
}

func (s *Service) transition(ctx context.Context, userID, quizID, from, to string) error {
	quiz, err := s.store.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return err
	}
	if quiz.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, quiz.Status, to)
	}
	if err := s.store.UpdateQuizStatus(ctx, userID, quizID, to); err != nil {
		return err
	}
	logger.Info("Quiz status changed",
		zap.String("quiz_id", quizID),
		zap.String("from", from),
		zap.String("to", to),
	)
	return nil
}

type AnswerInput struct {
	QuestionID string
	Response   string
}

// SubmitAnswers records a taker's answers against a published quiz.
// Multiple-choice answers are scored immediately; essay answers wait for a
// grading suggestion and teacher confirmation.
func (s *Service) SubmitAnswers(ctx context.Context, takerID, quizID string, inputs []AnswerInput) (*models.Submission, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("submission has no answers")
	}

	if _, err := s.store.GetPublishedQuiz(ctx, quizID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotPublished
		}
		return nil, err
	}

	questions, err := s.store.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	now := time.Now().UTC()
	submission := &models.Submission{
		ID:          uuid.New().String(),
		QuizID:      quizID,
		UserID:      takerID,
		SubmittedAt: now,
	}

	for _, input := range inputs {
		question, ok := byID[input.QuestionID]
		if !ok {
			return nil, fmt.Errorf("question %s does not belong to this quiz", input.QuestionID)
		}

		answer := models.Answer{
			ID:           uuid.New().String(),
			SubmissionID: submission.ID,
			QuestionID:   input.QuestionID,
			Response:     input.Response,
		}
		if question.Kind == models.QuestionKindMultipleChoice && question.CorrectAnswer != nil {
			answer.FinalScore, answer.GradedAt = scoreChoice(input.Response, *question.CorrectAnswer, question.MaxPoints, now)
		}
		submission.Answers = append(submission.Answers, answer)
	}

	if err := s.store.CreateSubmission(ctx, submission); err != nil {
		return nil, err
	}

	metrics.SubmissionsTotal.Inc()
	logger.Info("Submission recorded",
		zap.String("quiz_id", quizID),
		zap.String("submission_id", submission.ID),
		zap.Int("answers", len(submission.Answers)),
	)
	return submission, nil
}

func scoreChoice(response string, correct, maxPoints int, now time.Time) (*int, *time.Time) {
	score := 0
	if chosen, err := strconv.Atoi(response); err == nil && chosen == correct {
		score = maxPoints
	}
	return &score, &now
}

// SuggestEssayGrade produces an advisory grade for one essay answer and
// records it on the answer row. The quiz owner confirms or overrides it.
func (s *Service) SuggestEssayGrade(ctx context.Context, ownerID, submissionID, answerID string) (*generation.GradeSuggestion, error) {
	answer, question, err := s.loadAnswer(ctx, ownerID, submissionID, answerID)
	if err != nil {
		return nil, err
	}
	if question.Kind != models.QuestionKindEssay {
		return nil, fmt.Errorf("question %s is not an essay question", question.ID)
	}

	suggestion, err := s.generator.SuggestEssayGrade(ctx, generation.GradingRequest{
		EssayPrompt: question.Prompt,
		Rubric:      question.Rubric,
		Answer:      answer.Response,
		MaxPoints:   question.MaxPoints,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.SetSuggestedGrade(ctx, answerID, suggestion.SuggestedScore, suggestion.Feedback); err != nil {
		return nil, err
	}
	return &suggestion, nil
}

// ConfirmGrade is the owner's final decision on an essay answer. The score
// must lie inside the question's point range.
func (s *Service) ConfirmGrade(ctx context.Context, ownerID, submissionID, answerID string, score int) error {
	_, question, err := s.loadAnswer(ctx, ownerID, submissionID, answerID)
	if err != nil {
		return err
	}
	if score < 0 || score > question.MaxPoints {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrScoreOutOfRange, score, question.MaxPoints)
	}
	return s.store.ConfirmGrade(ctx, answerID, score)
}

func (s *Service) ListSubmissions(ctx context.Context, ownerID, quizID string) ([]models.Submission, error) {
	if _, err := s.store.GetQuiz(ctx, ownerID, quizID); err != nil {
		return nil, err
	}
	return s.store.ListSubmissions(ctx, quizID)
}

func (s *Service) GetSubmission(ctx context.Context, ownerID, submissionID string) (*models.Submission, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetQuiz(ctx, ownerID, submission.QuizID); err != nil {
		return nil, err
	}
	return submission, nil
}

// loadAnswer resolves an answer inside a submission and verifies the
// submission's quiz belongs to ownerID.
func (s *Service) loadAnswer(ctx context.Context, ownerID, submissionID, answerID string) (*models.Answer, *models.Question, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.store.GetQuiz(ctx, ownerID, submission.QuizID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, nil, postgres.ErrForbidden
		}
		return nil, nil, err
	}

	var answer *models.Answer
	for i := range submission.Answers {
		if submission.Answers[i].ID == answerID {
			answer = &submission.Answers[i]
			break
		}
	}
	if answer == nil {
		return nil, nil, postgres.ErrNotFound
	}

	question, err := s.store.GetQuestion(ctx, answer.QuestionID)
	if err != nil {
		return nil, nil, err
	}
	return answer, question, nil
}
