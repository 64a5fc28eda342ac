package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/quizforge/backend/internal/generation"
	"github.com/quizforge/backend/internal/middleware/auth"
	"github.com/quizforge/backend/internal/quiz"
)

type GenerationHandler struct {
	service *quiz.Service
}

func NewGenerationHandler(service *quiz.Service) *GenerationHandler {
	return &GenerationHandler{service: service}
}

// GenerateQuestions runs AI question generation for a draft quiz and
// stores the result as the draft payload for review.
func (h *GenerationHandler) GenerateQuestions(c *fiber.Ctx) error {
	var req struct {
		Count      int    `json:"count"`
		Difficulty string `json:"difficulty"`
		Topic      string `json:"topic"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Count <= 0 {
		req.Count = 5
	}
	if req.Count > 25 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At most 25 questions can be generated per request",
		})
	}

	questions, err := h.service.GenerateQuestions(c.Context(), auth.UserID(c), c.Params("id"), generation.QuestionParams{
		Count:      req.Count,
		Difficulty: req.Difficulty,
		Topic:      req.Topic,
	})
	if err != nil {
		return quizError(c, err, "Failed to generate questions")
	}

	return c.JSON(fiber.Map{
		"questions": questions,
		"count":     len(questions),
	})
}

// PromoteQuestions turns the reviewed draft payload into real question rows.
func (h *GenerationHandler) PromoteQuestions(c *fiber.Ctx) error {
	questions, err := h.service.PromoteDraftQuestions(c.Context(), auth.UserID(c), c.Params("id"))
	if err != nil {
		return quizError(c, err, "Failed to promote questions")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"questions": questions,
		"count":     len(questions),
	})
}

// AddEssayQuestion appends an essay question, generating a rubric from the
// source document when the request does not carry one.
func (h *GenerationHandler) AddEssayQuestion(c *fiber.Ctx) error {
	var req struct {
		Prompt      string `json:"prompt"`
		MaxPoints   int    `json:"max_points"`
		Rubric      string `json:"rubric"`
		AudioPrompt bool   `json:"audio_prompt"`
		VoiceAnswer bool   `json:"voice_answer"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	question, err := h.service.AddEssayQuestion(c.Context(), auth.UserID(c), c.Params("id"), quiz.EssayQuestionInput{
		Prompt:      req.Prompt,
		MaxPoints:   req.MaxPoints,
		Rubric:      req.Rubric,
		AudioPrompt: req.AudioPrompt,
		VoiceAnswer: req.VoiceAnswer,
	})
	if err != nil {
		return quizError(c, err, "Failed to add essay question")
	}
	return c.Status(fiber.StatusCreated).JSON(question)
}
