package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/middleware/auth"
	"github.com/quizforge/backend/internal/quiz"
	"github.com/quizforge/backend/internal/storage/postgres"
	"github.com/quizforge/backend/pkg/logger"
)

type QuizHandler struct {
	service *quiz.Service
}

func NewQuizHandler(service *quiz.Service) *QuizHandler {
	return &QuizHandler{service: service}
}

func (h *QuizHandler) CreateQuiz(c *fiber.Ctx) error {
	var req struct {
		Name               string `json:"name"`
		Description        string `json:"description"`
		SourceDocumentPath string `json:"source_document_path"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	created, err := h.service.CreateQuiz(c.Context(), auth.UserID(c), quiz.CreateQuizInput{
		Name:               req.Name,
		Description:        req.Description,
		SourceDocumentPath: req.SourceDocumentPath,
	})
	if err != nil {
		return quizError(c, err, "Failed to create quiz")
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *QuizHandler) ListQuizzes(c *fiber.Ctx) error {
	quizzes, err := h.service.ListQuizzes(c.Context(), auth.UserID(c))
	if err != nil {
		return quizError(c, err, "Failed to list quizzes")
	}
	return c.JSON(fiber.Map{
		"quizzes": quizzes,
		"count":   len(quizzes),
	})
}

func (h *QuizHandler) GetQuiz(c *fiber.Ctx) error {
	found, err := h.service.GetQuiz(c.Context(), auth.UserID(c), c.Params("id"))
	if err != nil {
		return quizError(c, err, "Failed to get quiz")
	}
	return c.JSON(found)
}

func (h *QuizHandler) DeleteQuiz(c *fiber.Ctx) error {
	if err := h.service.DeleteQuiz(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
		return quizError(c, err, "Failed to delete quiz")
	}
	return c.JSON(fiber.Map{"message": "Quiz deleted"})
}

func (h *QuizHandler) PublishQuiz(c *fiber.Ctx) error {
	if err := h.service.Publish(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
		return quizError(c, err, "Failed to publish quiz")
	}
	return c.JSON(fiber.Map{"message": "Quiz published"})
}

func (h *QuizHandler) ArchiveQuiz(c *fiber.Ctx) error {
	if err := h.service.Archive(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
		return quizError(c, err, "Failed to archive quiz")
	}
	return c.JSON(fiber.Map{"message": "Quiz archived"})
}

func (h *QuizHandler) ListQuestions(c *fiber.Ctx) error {
	questions, err := h.service.ListQuestions(c.Context(), auth.UserID(c), c.Params("id"))
	if err != nil {
		return quizError(c, err, "Failed to list questions")
	}
	return c.JSON(fiber.Map{
		"questions": questions,
		"count":     len(questions),
	})
}

func (h *QuizHandler) RemoveQuestion(c *fiber.Ctx) error {
	if err := h.service.RemoveQuestion(c.Context(), auth.UserID(c), c.Params("questionId")); err != nil {
		return quizError(c, err, "Failed to remove question")
	}
	return c.JSON(fiber.Map{"message": "Question removed"})
}

func (h *QuizHandler) SubmitAnswers(c *fiber.Ctx) error {
	var req struct {
		Answers []struct {
			QuestionID string `json:"question_id"`
			Response   string `json:"response"`
		} `json:"answers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	inputs := make([]quiz.AnswerInput, len(req.Answers))
	for i, a := range req.Answers {
		inputs[i] = quiz.AnswerInput{QuestionID: a.QuestionID, Response: a.Response}
	}

	submission, err := h.service.SubmitAnswers(c.Context(), auth.UserID(c), c.Params("id"), inputs)
	if err != nil {
		return quizError(c, err, "Failed to submit answers")
	}
	return c.Status(fiber.StatusCreated).JSON(submission)
}

func (h *QuizHandler) ListSubmissions(c *fiber.Ctx) error {
	submissions, err := h.service.ListSubmissions(c.Context(), auth.UserID(c), c.Params("id"))
	if err != nil {
		return quizError(c, err, "Failed to list submissions")
	}
	return c.JSON(fiber.Map{
		"submissions": submissions,
		"count":       len(submissions),
	})
}

func (h *QuizHandler) GetSubmission(c *fiber.Ctx) error {
	submission, err := h.service.GetSubmission(c.Context(), auth.UserID(c), c.Params("submissionId"))
	if err != nil {
		return quizError(c, err, "Failed to get submission")
	}
	return c.JSON(submission)
}

// quizError maps service errors onto HTTP statuses. Unexpected failures
// are logged and reported generically.
func quizError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	case errors.Is(err, postgres.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You do not have access to this resource",
		})
	case errors.Is(err, quiz.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, quiz.ErrNotPublished):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Quiz is not accepting submissions",
		})
	case errors.Is(err, quiz.ErrScoreOutOfRange):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		logger.Error(fallback, zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fallback,
		})
	}
}
