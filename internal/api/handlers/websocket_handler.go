package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/middleware/auth"
	"github.com/quizforge/backend/internal/quiz"
	"github.com/quizforge/backend/pkg/logger"
)

// WebSocketHandler streams grading suggestions over a live connection so
// the teacher's review view updates answer by answer while a submission is
// being graded.
type WebSocketHandler struct {
	service *quiz.Service
}

func NewWebSocketHandler(service *quiz.Service) *WebSocketHandler {
	return &WebSocketHandler{service: service}
}

type gradeRequest struct {
	Type         string   `json:"type"`
	SubmissionID string   `json:"submission_id"`
	AnswerIDs    []string `json:"answer_ids"`
}

// HandleConnection serves one grading session. The caller identity set by
// the auth middleware survives the websocket upgrade through Locals.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	userID, _ := c.Locals(auth.UserIDKey).(string)

	logger.Info("Grading session opened", zap.String("user_id", userID))
	defer func() {
		c.Close()
		logger.Info("Grading session closed", zap.String("user_id", userID))
	}()

	for {
		var req gradeRequest
		if err := c.ReadJSON(&req); err != nil {
			break
		}
		if req.Type != "grade" {
			continue
		}

		h.streamSuggestions(c, userID, req)
	}
}

func (h *WebSocketHandler) streamSuggestions(c *websocket.Conn, userID string, req gradeRequest) {
	ctx := context.Background()

	for _, answerID := range req.AnswerIDs {
		h.send(c, map[string]any{
			"type":      "grading",
			"answer_id": answerID,
		})

		suggestion, err := h.service.SuggestEssayGrade(ctx, userID, req.SubmissionID, answerID)
		if err != nil {
			logger.Warn("Failed to suggest grade over websocket",
				zap.String("answer_id", answerID),
				zap.Error(err),
			)
			h.send(c, map[string]any{
				"type":      "error",
				"answer_id": answerID,
				"error":     "Failed to suggest grade",
			})
			continue
		}

		h.send(c, map[string]any{
			"type":            "suggestion",
			"answer_id":       answerID,
			"suggested_score": suggestion.SuggestedScore,
			"feedback":        suggestion.Feedback,
		})
	}

	h.send(c, map[string]any{
		"type":          "complete",
		"submission_id": req.SubmissionID,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]any) {
	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to write websocket message", zap.Error(err))
	}
}
