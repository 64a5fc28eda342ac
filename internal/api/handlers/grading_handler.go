package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/quizforge/backend/internal/middleware/auth"
	"github.com/quizforge/backend/internal/quiz"
)

type GradingHandler struct {
	service *quiz.Service
}

func NewGradingHandler(service *quiz.Service) *GradingHandler {
	return &GradingHandler{service: service}
}

// SuggestGrade produces an advisory AI grade for one essay answer. The
// suggestion is stored on the answer; nothing is final until the owner
// confirms.
func (h *GradingHandler) SuggestGrade(c *fiber.Ctx) error {
	suggestion, err := h.service.SuggestEssayGrade(
		c.Context(),
		auth.UserID(c),
		c.Params("submissionId"),
		c.Params("answerId"),
	)
	if err != nil {
		return quizError(c, err, "Failed to suggest grade")
	}
	return c.JSON(suggestion)
}

// ConfirmGrade records the owner's final score for an essay answer.
func (h *GradingHandler) ConfirmGrade(c *fiber.Ctx) error {
	var req struct {
		Score int `json:"score"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	err := h.service.ConfirmGrade(
		c.Context(),
		auth.UserID(c),
		c.Params("submissionId"),
		c.Params("answerId"),
		req.Score,
	)
	if err != nil {
		return quizError(c, err, "Failed to confirm grade")
	}
	return c.JSON(fiber.Map{"message": "Grade confirmed"})
}
