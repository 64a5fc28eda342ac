package generation

import (
	"strings"
	"testing"
)

func TestParseGradeResponseStrictJSON(t *testing.T) {
	got, decoder := ParseGradeResponse(`{"score": 4, "feedback": "Solid argument."}`, 5)
	if decoder != "json" {
		t.Fatalf("decoder = %q, want json", decoder)
	}
	if got.SuggestedScore != 4 {
		t.Errorf("score = %d, want 4", got.SuggestedScore)
	}
	if got.Feedback != "Solid argument." {
		t.Errorf("feedback = %q", got.Feedback)
	}
}

func TestParseGradeResponseRoundsFractionalScore(t *testing.T) {
	got, _ := ParseGradeResponse(`{"score": 3.7, "feedback": "Close."}`, 5)
	if got.SuggestedScore != 4 {
		t.Errorf("score = %d, want 4", got.SuggestedScore)
	}
}

func TestParseGradeResponseClampsToMaxPoints(t *testing.T) {
	got, _ := ParseGradeResponse(`{"score": 10, "feedback": "Generous."}`, 5)
	if got.SuggestedScore != 5 {
		t.Errorf("score = %d, want 5", got.SuggestedScore)
	}
}

func TestParseGradeResponseClampsNegativeToZero(t *testing.T) {
	got, _ := ParseGradeResponse(`{"score": -2, "feedback": "Harsh."}`, 5)
	if got.SuggestedScore != 0 {
		t.Errorf("score = %d, want 0", got.SuggestedScore)
	}
}

func TestParseGradeResponseFencedJSON(t *testing.T) {
	content := "```json\n{\"score\": 3, \"feedback\": \"Fenced.\"}\n```"
	got, decoder := ParseGradeResponse(content, 5)
	if decoder != "fenced_json" {
		t.Fatalf("decoder = %q, want fenced_json", decoder)
	}
	if got.SuggestedScore != 3 || got.Feedback != "Fenced." {
		t.Errorf("got %+v", got)
	}
}

func TestParseGradeResponseRegexSalvage(t *testing.T) {
	content := `Here is my assessment: {"score": 8, "feedback": "Well structured." and then it cuts off`
	got, decoder := ParseGradeResponse(content, 10)
	if decoder != "regex" {
		t.Fatalf("decoder = %q, want regex", decoder)
	}
	if got.SuggestedScore != 8 {
		t.Errorf("score = %d, want 8", got.SuggestedScore)
	}
	if got.Feedback != "Well structured." {
		t.Errorf("feedback = %q", got.Feedback)
	}
}

func TestParseGradeResponseRegexWithoutFeedback(t *testing.T) {
	got, decoder := ParseGradeResponse(`the "score": 6.2 seems right`, 10)
	if decoder != "regex" {
		t.Fatalf("decoder = %q, want regex", decoder)
	}
	if got.SuggestedScore != 6 {
		t.Errorf("score = %d, want 6", got.SuggestedScore)
	}
	if got.Feedback != fallbackFeedback {
		t.Errorf("feedback = %q, want fallback", got.Feedback)
	}
}

func TestParseGradeResponseDefaultsOnUnparseable(t *testing.T) {
	got, decoder := ParseGradeResponse("I cannot grade this right now.", 5)
	if decoder != "default" {
		t.Fatalf("decoder = %q, want default", decoder)
	}
	if got.SuggestedScore != 3 { // floor(5 * 0.7)
		t.Errorf("score = %d, want 3", got.SuggestedScore)
	}
	if got.Feedback != fallbackFeedback {
		t.Errorf("feedback = %q, want fallback", got.Feedback)
	}
}

func TestParseGradeResponseMissingScoreField(t *testing.T) {
	got, decoder := ParseGradeResponse(`{"feedback": "no score here"}`, 10)
	if decoder != "default" {
		t.Fatalf("decoder = %q, want default", decoder)
	}
	if got.SuggestedScore != 7 {
		t.Errorf("score = %d, want 7", got.SuggestedScore)
	}
}

func TestParseGradeResponseNeverEmptyFeedback(t *testing.T) {
	inputs := []string{
		`{"score": 5}`,
		`{"score": 5, "feedback": ""}`,
		"garbage",
	}
	for _, input := range inputs {
		got, _ := ParseGradeResponse(input, 10)
		if strings.TrimSpace(got.Feedback) == "" {
			t.Errorf("input %q produced empty feedback", input)
		}
	}
}
