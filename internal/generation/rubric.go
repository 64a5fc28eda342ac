package generation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/llm"
	"github.com/quizforge/backend/internal/metrics"
	"github.com/quizforge/backend/pkg/logger"
)

const rubricSystemPrompt = `You are an experienced teacher writing grading rubrics for essay questions.

Write a clear, structured rubric with point bands: for each band state the
score range and what an answer in that band looks like. Plain formatted
text, no JSON.`

// GenerateRubric produces a grading rubric for an essay prompt, optionally
// grounded in relevance-ranked document context. An empty response is a
// hard failure.
func (g *Generator) GenerateRubric(ctx context.Context, docContext, essayPrompt string, maxPoints int) (string, error) {
	if strings.TrimSpace(essayPrompt) == "" {
		return "", fmt.Errorf("essay prompt is required")
	}
	if maxPoints <= 0 {
		maxPoints = 10
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Essay question (worth %d points):\n%s\n", maxPoints, essayPrompt)
	if docContext != "" {
		fmt.Fprintf(&prompt, "\nCourse material the question is based on:\n\n%s\n", docContext)
	}

	resp, err := g.ai.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: rubricSystemPrompt,
		UserPrompt:   prompt.String(),
		Temperature:  0.4,
	})
	if err != nil {
		metrics.GenerationTotal.WithLabelValues("rubric", "error").Inc()
		return "", fmt.Errorf("failed to generate rubric: %w", err)
	}

	rubric := strings.TrimSpace(resp.Content)
	if rubric == "" {
		metrics.GenerationTotal.WithLabelValues("rubric", "parse_error").Inc()
		return "", fmt.Errorf("rubric generation returned empty response")
	}

	metrics.GenerationTotal.WithLabelValues("rubric", "ok").Inc()
	logger.Info("Rubric generated", zap.Int("length", len(rubric)))
	return rubric, nil
}
