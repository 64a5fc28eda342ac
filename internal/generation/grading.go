package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/llm"
	"github.com/quizforge/backend/internal/metrics"
	"github.com/quizforge/backend/pkg/logger"
)

// fallbackFeedback is shown when the provider's response could not be
// parsed at all. Suggestions are advisory; a teacher confirms every grade.
const fallbackFeedback = "Your answer has been reviewed. A teacher will confirm the final score and add detailed feedback."

const gradingSystemPrompt = `You are an experienced teacher grading an essay answer against a rubric.

Return ONLY a JSON object of this exact shape:
{"score": 7, "feedback": "..."}

Rules:
- score is a number between 0 and the stated maximum
- feedback is 2-4 sentences addressed to the student
- no text outside the JSON object`

// GradeSuggestion is an advisory score and feedback pair. It always holds
// a usable value: parsing a grade response cannot fail.
type GradeSuggestion struct {
	SuggestedScore int    `json:"suggestedScore"`
	Feedback       string `json:"feedback"`
}

type GradingRequest struct {
	EssayPrompt string
	Rubric      string
	Answer      string
	MaxPoints   int
}

// SuggestEssayGrade asks the provider to grade an answer and parses the
// response defensively. Only the upstream call itself can fail; any
// response, however malformed, yields a suggestion.
func (g *Generator) SuggestEssayGrade(ctx context.Context, req GradingRequest) (GradeSuggestion, error) {
	if req.MaxPoints <= 0 {
		req.MaxPoints = 10
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question (worth %d points):\n%s\n", req.MaxPoints, req.EssayPrompt)
	if req.Rubric != "" {
		fmt.Fprintf(&prompt, "\nRubric:\n%s\n", req.Rubric)
	}
	fmt.Fprintf(&prompt, "\nStudent answer:\n%s\n", req.Answer)

	resp, err := g.ai.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: gradingSystemPrompt,
		UserPrompt:   prompt.String(),
		Temperature:  0.2,
	})
	if err != nil {
		metrics.GradingSuggestions.WithLabelValues("error").Inc()
		return GradeSuggestion{}, fmt.Errorf("failed to grade essay: %w", err)
	}

	suggestion, decoder := ParseGradeResponse(resp.Content, req.MaxPoints)
	metrics.GradingSuggestions.WithLabelValues(decoder).Inc()
	if decoder == "default" {
		logger.Warn("Unparseable grading response, using default suggestion",
			zap.Int("max_points", req.MaxPoints),
		)
	}
	return suggestion, nil
}

type gradeDecoder struct {
	name   string
	decode func(content string, maxPoints int) (GradeSuggestion, bool)
}

var gradeDecoders = []gradeDecoder{
	{"json", decodeGradeJSON},
	{"fenced_json", decodeGradeFencedJSON},
	{"regex", decodeGradeRegex},
}

// ParseGradeResponse runs the decoder chain over the provider's response:
// strict JSON, then fence-stripped JSON, then a regex scan for the score
// field. When every decoder fails it falls back to 70% of the maximum,
// rounded down, with generic feedback. The second return names the decoder
// that produced the suggestion.
func ParseGradeResponse(content string, maxPoints int) (GradeSuggestion, string) {
	for _, d := range gradeDecoders {
		if suggestion, ok := d.decode(content, maxPoints); ok {
			return suggestion, d.name
		}
	}

	return GradeSuggestion{
		SuggestedScore: int(math.Floor(float64(maxPoints) * 0.7)),
		Feedback:       fallbackFeedback,
	}, "default"
}

type rawGrade struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

func decodeGradeJSON(content string, maxPoints int) (GradeSuggestion, bool) {
	return unmarshalGrade(strings.TrimSpace(content), maxPoints)
}

func decodeGradeFencedJSON(content string, maxPoints int) (GradeSuggestion, bool) {
	stripped := stripCodeFences(content)
	if stripped == strings.TrimSpace(content) {
		return GradeSuggestion{}, false
	}
	return unmarshalGrade(stripped, maxPoints)
}

var (
	scoreFieldRe    = regexp.MustCompile(`"score"\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	feedbackFieldRe = regexp.MustCompile(`"feedback"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// decodeGradeRegex salvages a score out of responses that wrap the JSON in
// prose or truncate it mid-object.
func decodeGradeRegex(content string, maxPoints int) (GradeSuggestion, bool) {
	m := scoreFieldRe.FindStringSubmatch(content)
	if m == nil {
		return GradeSuggestion{}, false
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return GradeSuggestion{}, false
	}

	feedback := fallbackFeedback
	if fm := feedbackFieldRe.FindStringSubmatch(content); fm != nil {
		if unquoted, err := strconv.Unquote(`"` + fm[1] + `"`); err == nil && strings.TrimSpace(unquoted) != "" {
			feedback = unquoted
		}
	}

	return GradeSuggestion{
		SuggestedScore: clampScore(score, maxPoints),
		Feedback:       feedback,
	}, true
}

func unmarshalGrade(content string, maxPoints int) (GradeSuggestion, bool) {
	var raw rawGrade
	if err := json.Unmarshal([]byte(content), &raw); err != nil || raw.Score == nil {
		return GradeSuggestion{}, false
	}

	feedback := strings.TrimSpace(raw.Feedback)
	if feedback == "" {
		feedback = fallbackFeedback
	}

	return GradeSuggestion{
		SuggestedScore: clampScore(*raw.Score, maxPoints),
		Feedback:       feedback,
	}, true
}

// clampScore rounds fractional scores to the nearest integer and clamps the
// result into [0, maxPoints].
func clampScore(score float64, maxPoints int) int {
	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > maxPoints {
		return maxPoints
	}
	return rounded
}
