package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/speech"
	"github.com/quizforge/backend/pkg/logger"
)

type SpeechHandler struct {
	service *speech.Service
}

func NewSpeechHandler(service *speech.Service) *SpeechHandler {
	return &SpeechHandler{service: service}
}

// Transcribe converts an uploaded answer recording to text. The client
// sends the audio as a multipart file; the filename extension tells the
// provider which decoder to use.
func (h *SpeechHandler) Transcribe(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "An audio file upload is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded audio", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded audio",
		})
	}
	defer file.Close()

	text, err := h.service.Transcribe(c.Context(), fileHeader.Filename, file)
	if err != nil {
		logger.Error("Failed to transcribe audio", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Transcription failed",
		})
	}

	return c.JSON(fiber.Map{
		"text": text,
	})
}

// Synthesize renders text as spoken audio and streams it back as MP3.
func (h *SpeechHandler) Synthesize(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text is required",
		})
	}

	audio, err := h.service.Synthesize(c.Context(), req.Text)
	if err != nil {
		logger.Error("Failed to synthesize speech", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Speech synthesis failed",
		})
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	return c.Send(audio)
}
