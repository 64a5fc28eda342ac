package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/llm"
	"github.com/quizforge/backend/internal/metrics"
	"github.com/quizforge/backend/pkg/logger"
)

// Completer is the slice of the AI client the generators use.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Generator produces quiz questions, rubrics, and essay grade suggestions
// from assembled document context.
type Generator struct {
	ai Completer
}

func NewGenerator(ai Completer) *Generator {
	return &Generator{ai: ai}
}

type QuestionParams struct {
	Count      int
	Difficulty string
	Topic      string
}

// GeneratedQuestion is the strict contract AI output must satisfy: exactly
// four options and a correct index inside them.
type GeneratedQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

type questionPayload struct {
	Questions *[]GeneratedQuestion `json:"questions"`
}

const questionSystemPrompt = `You are an experienced teacher writing multiple-choice quiz questions.

Return ONLY a JSON object of this exact shape:
{"questions": [{"question": "...", "options": ["...", "...", "...", "..."], "correctAnswer": 0, "explanation": "..."}]}

Rules:
- exactly 4 options per question
- correctAnswer is the zero-based index of the right option
- every question must be answerable from the provided material when material is given
- no text outside the JSON object`

// GenerateQuestions asks the AI provider for questions grounded in context
// and validates the response against the strict payload contract. Malformed
// output is a hard failure, never silently defaulted.
func (g *Generator) GenerateQuestions(ctx context.Context, docContext string, params QuestionParams) ([]GeneratedQuestion, error) {
	if params.Count <= 0 {
		return nil, fmt.Errorf("question count must be positive")
	}
	if params.Difficulty == "" {
		params.Difficulty = "medium"
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write %d %s-difficulty multiple-choice questions", params.Count, params.Difficulty)
	if params.Topic != "" {
		fmt.Fprintf(&prompt, " about %q", params.Topic)
	}
	prompt.WriteString(".\n")
	if docContext != "" {
		fmt.Fprintf(&prompt, "\nBase every question on this material:\n\n%s\n", docContext)
	}

	resp, err := g.ai.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: questionSystemPrompt,
		UserPrompt:   prompt.String(),
		Temperature:  0.7,
	})
	if err != nil {
		metrics.GenerationTotal.WithLabelValues("questions", "error").Inc()
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}

	questions, err := ParseQuestionPayload(resp.Content)
	if err != nil {
		metrics.GenerationTotal.WithLabelValues("questions", "parse_error").Inc()
		return nil, err
	}

	metrics.GenerationTotal.WithLabelValues("questions", "ok").Inc()
	logger.Info("Questions generated",
		zap.Int("requested", params.Count),
		zap.Int("returned", len(questions)),
	)
	return questions, nil
}

// ParseQuestionPayload validates the provider's response against the
// question schema.
func ParseQuestionPayload(content string) ([]GeneratedQuestion, error) {
	var payload questionPayload
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &payload); err != nil {
		return nil, fmt.Errorf("malformed question payload: %w", err)
	}
	if payload.Questions == nil {
		return nil, fmt.Errorf("question payload missing questions array")
	}

	questions := *payload.Questions
	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			return nil, fmt.Errorf("question %d has empty prompt", i)
		}
		if len(q.Options) != 4 {
			return nil, fmt.Errorf("question %d has %d options, want 4", i, len(q.Options))
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer > 3 {
			return nil, fmt.Errorf("question %d has correctAnswer %d out of range", i, q.CorrectAnswer)
		}
	}
	return questions, nil
}
