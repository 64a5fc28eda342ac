package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/ingestion"
	"github.com/quizforge/backend/internal/metrics"
	"github.com/quizforge/backend/pkg/logger"
)

// maxUtteranceLength bounds the text handed to the synthesis provider in a
// single call. Provider limit is 4096 characters; stay well under it.
const maxUtteranceLength = 3500

// Synthesizer is the slice of the AI client speech uses.
type Synthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
	Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error)
}

// Service converts question prompts to audio and recorded answers to text.
type Service struct {
	ai Synthesizer
}

func NewService(ai Synthesizer) *Service {
	return &Service{ai: ai}
}

// Synthesize renders text as a single MP3 stream. Long text is split into
// sentence-boundary utterances, synthesized in order, and concatenated;
// MP3 frames are self-delimiting so the parts join without re-encoding.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	utterances := splitUtterances(text, maxUtteranceLength)

	var buf bytes.Buffer
	for i, utterance := range utterances {
		audio, err := s.ai.Speak(ctx, utterance)
		if err != nil {
			metrics.SpeechRequests.WithLabelValues("synthesis", "error").Inc()
			return nil, fmt.Errorf("failed to synthesize utterance %d/%d: %w", i+1, len(utterances), err)
		}
		buf.Write(audio)
	}

	metrics.SpeechRequests.WithLabelValues("synthesis", "ok").Inc()
	logger.Info("Speech synthesized",
		zap.Int("text_length", len(text)),
		zap.Int("utterances", len(utterances)),
		zap.Int("audio_bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

// Transcribe converts a recorded answer to text.
func (s *Service) Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error) {
	text, err := s.ai.Transcribe(ctx, fileName, audio)
	if err != nil {
		metrics.SpeechRequests.WithLabelValues("transcription", "error").Inc()
		return "", err
	}

	metrics.SpeechRequests.WithLabelValues("transcription", "ok").Inc()
	return strings.TrimSpace(text), nil
}

// splitUtterances packs sentences greedily into utterances no longer than
// maxLen characters, counting runes so the provider limit applies the same
// to accented and CJK text. Sentence boundaries come from NLP segmentation,
// which handles abbreviations and decimal points better than punctuation
// scanning; a single sentence over the budget falls back to fixed-size
// splitting.
func splitUtterances(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	sentences := segmentSentences(text)

	var utterances []string
	var packed []string
	packedLen := 0

	flush := func() {
		if len(packed) > 0 {
			utterances = append(utterances, strings.Join(packed, " "))
			packed = packed[:0]
			packedLen = 0
		}
	}

	for _, sentence := range sentences {
		size := utf8.RuneCountInString(sentence)
		if size > maxLen {
			flush()
			utterances = append(utterances, ingestion.ChunkFixed(sentence, maxLen, 0)...)
			continue
		}

		if packedLen > 0 && packedLen+1+size > maxLen {
			flush()
		}
		if packedLen > 0 {
			packedLen++
		}
		packed = append(packed, sentence)
		packedLen += size
	}
	flush()
	return utterances
}

func segmentSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Warn("Sentence segmentation failed, treating text as one sentence", zap.Error(err))
		return []string{text}
	}

	var sentences []string
	for _, sentence := range doc.Sentences() {
		trimmed := strings.TrimSpace(sentence.Text)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}
