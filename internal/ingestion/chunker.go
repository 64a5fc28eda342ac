package ingestion

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Overlap used when a single sentence exceeds the chunk budget and has to be
// subdivided with the fixed-size chunker.
const fallbackOverlap = 100

var (
	paragraphBreak   = regexp.MustCompile(`\n\s*\n`)
	sentenceBoundary = regexp.MustCompile(`([.!?]+)\s+`)
)

// ChunkFixed slices text into chunks of at most chunkSize characters,
// advancing by chunkSize-overlap each step. Sizes count runes, not bytes,
// so a boundary can never land inside a multi-byte character. Slices are
// trimmed and empty ones dropped. The step is clamped to at least 1 so an
// overlap at or above chunkSize cannot stall the loop.
func ChunkFixed(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}

	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks
}

// ChunkBySentence splits text into sentence units and greedily packs them
// into chunks of at most maxChunkSize characters, joined by single spaces.
// A sentence that alone exceeds the budget is subdivided with ChunkFixed
// rather than returned oversized or dropped; overlap controls that fallback,
// with zero or a negative value selecting the default.
func ChunkBySentence(text string, maxChunkSize, overlap int) []string {
	if maxChunkSize <= 0 {
		return nil
	}
	if overlap <= 0 {
		overlap = fallbackOverlap
	}
	if overlap >= maxChunkSize {
		overlap = maxChunkSize / 4
	}

	var chunks []string
	var packed []string
	packedLen := 0

	flush := func() {
		if len(packed) > 0 {
			chunks = append(chunks, strings.Join(packed, " "))
			packed = packed[:0]
			packedLen = 0
		}
	}

	for _, paragraph := range paragraphBreak.Split(text, -1) {
		for _, sentence := range splitSentences(paragraph) {
			size := utf8.RuneCountInString(sentence)
			if size > maxChunkSize {
				flush()
				chunks = append(chunks, ChunkFixed(sentence, maxChunkSize, overlap)...)
				continue
			}
			if packedLen > 0 && packedLen+1+size > maxChunkSize {
				flush()
			}
			if packedLen > 0 {
				packedLen++
			}
			packed = append(packed, sentence)
			packedLen += size
		}
	}
	flush()

	return chunks
}

// splitSentences breaks a paragraph on sentence-terminal punctuation
// followed by whitespace, keeping the punctuation with its sentence.
func splitSentences(paragraph string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringSubmatchIndex(paragraph, -1) {
		sentence := strings.TrimSpace(paragraph[start:loc[3]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(paragraph[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
