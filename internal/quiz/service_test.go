package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/quizforge/backend/internal/generation"
	"github.com/quizforge/backend/internal/storage/models"
	"github.com/quizforge/backend/internal/storage/postgres"
	"github.com/quizforge/backend/pkg/logger"
)

func init() {
	logger.Init("error", "console", "stdout")
}

type fakeStore struct {
	quizzes     map[string]*models.Quiz
	questions   map[string]*models.Question
	submissions map[string]*models.Submission
	confirmed   map[string]int
	suggested   map[string]generation.GradeSuggestion
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		quizzes:     map[string]*models.Quiz{},
		questions:   map[string]*models.Question{},
		submissions: map[string]*models.Submission{},
		confirmed:   map[string]int{},
		suggested:   map[string]generation.GradeSuggestion{},
	}
}

func (f *fakeStore) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	f.quizzes[quiz.ID] = quiz
	return nil
}

func (f *fakeStore) GetQuiz(ctx context.Context, userID, quizID string) (*models.Quiz, error) {
	quiz, ok := f.quizzes[quizID]
	if !ok || quiz.UserID != userID {
		return nil, postgres.ErrNotFound
	}
	return quiz, nil
}

func (f *fakeStore) GetPublishedQuiz(ctx context.Context, quizID string) (*models.Quiz, error) {
	quiz, ok := f.quizzes[quizID]
	if !ok || quiz.Status != models.QuizStatusPublished {
		return nil, postgres.ErrNotFound
	}
	return quiz, nil
}

func (f *fakeStore) ListQuizzes(ctx context.Context, userID string) ([]models.Quiz, error) {
	var out []models.Quiz
	for _, quiz := range f.quizzes {
		if quiz.UserID == userID {
			out = append(out, *quiz)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateQuizStatus(ctx context.Context, userID, quizID, status string) error {
	quiz, err := f.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return err
	}
	quiz.Status = status
	return nil
}

func (f *fakeStore) SetDraftQuestions(ctx context.Context, userID, quizID string, payload datatypes.JSON) error {
	quiz, err := f.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return err
	}
	quiz.DraftQuestions = payload
	return nil
}

func (f *fakeStore) DeleteQuiz(ctx context.Context, userID, quizID string) error {
	if _, err := f.GetQuiz(ctx, userID, quizID); err != nil {
		return err
	}
	delete(f.quizzes, quizID)
	return nil
}

func (f *fakeStore) CreateQuestions(ctx context.Context, questions []models.Question) error {
	for i := range questions {
		q := questions[i]
		f.questions[q.ID] = &q
	}
	return nil
}

func (f *fakeStore) ListQuestions(ctx context.Context, quizID string) ([]models.Question, error) {
	var out []models.Question
	for _, q := range f.questions {
		if q.QuizID == quizID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeStore) GetQuestion(ctx context.Context, questionID string) (*models.Question, error) {
	q, ok := f.questions[questionID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return q, nil
}

func (f *fakeStore) SoftDeleteQuestion(ctx context.Context, userID, questionID string) error {
	q, ok := f.questions[questionID]
	if !ok {
		return postgres.ErrForbidden
	}
	quiz, ok := f.quizzes[q.QuizID]
	if !ok || quiz.UserID != userID {
		return postgres.ErrForbidden
	}
	delete(f.questions, questionID)
	return nil
}

func (f *fakeStore) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	f.submissions[submission.ID] = submission
	return nil
}

func (f *fakeStore) GetSubmission(ctx context.Context, submissionID string) (*models.Submission, error) {
	sub, ok := f.submissions[submissionID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return sub, nil
}

func (f *fakeStore) ListSubmissions(ctx context.Context, quizID string) ([]models.Submission, error) {
	var out []models.Submission
	for _, sub := range f.submissions {
		if sub.QuizID == quizID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeStore) SetSuggestedGrade(ctx context.Context, answerID string, score int, feedback string) error {
	f.suggested[answerID] = generation.GradeSuggestion{SuggestedScore: score, Feedback: feedback}
	return nil
}

func (f *fakeStore) ConfirmGrade(ctx context.Context, answerID string, score int) error {
	f.confirmed[answerID] = score
	return nil
}

type fakeAssembler struct {
	sequential string
	relevant   string
}

func (f *fakeAssembler) SequentialContext(ctx context.Context, filePath string) string {
	return f.sequential
}

func (f *fakeAssembler) RelevantContext(ctx context.Context, userID, filePath, query string, k int) string {
	return f.relevant
}

type fakeGenerator struct {
	questions  []generation.GeneratedQuestion
	rubric     string
	suggestion generation.GradeSuggestion
	err        error

	gotContext string
}

func (f *fakeGenerator) GenerateQuestions(ctx context.Context, docContext string, params generation.QuestionParams) ([]generation.GeneratedQuestion, error) {
	f.gotContext = docContext
	return f.questions, f.err
}

func (f *fakeGenerator) GenerateRubric(ctx context.Context, docContext, essayPrompt string, maxPoints int) (string, error) {
	f.gotContext = docContext
	return f.rubric, f.err
}

func (f *fakeGenerator) SuggestEssayGrade(ctx context.Context, req generation.GradingRequest) (generation.GradeSuggestion, error) {
	return f.suggestion, f.err
}

func newService(store *fakeStore, gen *fakeGenerator) *Service {
	return NewService(store, &fakeAssembler{sequential: "doc context"}, gen)
}

func seedQuiz(store *fakeStore, status string) *models.Quiz {
	quiz := &models.Quiz{
		ID:                 "quiz-1",
		UserID:             "owner",
		Name:               "Biology 101",
		Status:             status,
		SourceDocumentPath: "owner/doc.pdf",
		CreatedAt:          time.Now().UTC(),
	}
	store.quizzes[quiz.ID] = quiz
	return quiz
}

func TestCreateQuizRequiresName(t *testing.T) {
	svc := newService(newFakeStore(), &fakeGenerator{})
	if _, err := svc.CreateQuiz(context.Background(), "owner", CreateQuizInput{}); err == nil {
		t.Errorf("expected error for missing name")
	}
}

func TestCreateQuizStartsAsDraft(t *testing.T) {
	svc := newService(newFakeStore(), &fakeGenerator{})
	quiz, err := svc.CreateQuiz(context.Background(), "owner", CreateQuizInput{Name: "Biology"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quiz.Status != models.QuizStatusDraft {
		t.Errorf("status = %q, want draft", quiz.Status)
	}
}

func TestGenerateQuestionsStoresDraftPayload(t *testing.T) {
	store := newFakeStore()
	seedQuiz(store, models.QuizStatusDraft)
	gen := &fakeGenerator{questions: []generation.GeneratedQuestion{
		{Question: "Q1?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 2},
	}}
	svc := newService(store, gen)

	got, err := svc.GenerateQuestions(context.Background(), "owner", "quiz-1", generation.QuestionParams{Count: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d questions", len(got))
	}
	if gen.gotContext != "doc context" {
		t.Errorf("generator context = %q, want sequential context", gen.gotContext)
	}

	var stored []generation.GeneratedQuestion
	if err := json.Unmarshal(store.quizzes["quiz-1"].DraftQuestions, &stored); err != nil {
		t.Fatalf("draft payload not valid JSON: %v", err)
	}
	if len(stored) != 1 || stored[0].CorrectAnswer != 2 {
		t.Errorf("stored draft = %+v", stored)
	}
}

func TestGenerateQuestionsRejectsPublishedQuiz(t *testing.T) {
	store := newFakeStore()
	seedQuiz(store, models.QuizStatusPublished)
	svc := newService(store, &fakeGenerator{})

	_, err := svc.GenerateQuestions(context.Background(), "owner", "quiz-1", generation.QuestionParams{Count: 1})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestPromoteDraftQuestions(t *testing.T) {
	store := newFakeStore()
	quiz := seedQuiz(store, models.QuizStatusDraft)
	payload, _ := json.Marshal([]generation.GeneratedQuestion{
		{Question: "Q1?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 1},
		{Question: "Q2?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 3},
	})
	quiz.DraftQuestions = payload
	svc := newService(store, &fakeGenerator{})

	questions, err := svc.PromoteDraftQuestions(context.Background(), "owner", "quiz-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(questions))
	}
	for i, q := range questions {
		if q.Kind != models.QuestionKindMultipleChoice {
			t.Errorf("question %d kind = %q", i, q.Kind)
		}
		if q.OrderNum != i {
			t.Errorf("question %d order = %d", i, q.OrderNum)
		}
		if q.CorrectAnswer == nil {
			t.Errorf("question %d missing correct answer", i)
		}
	}
}

func TestPromoteWithoutDraftFails(t *testing.T) {
	store := newFakeStore()
	seedQuiz(store, models.QuizStatusDraft)
	svc := newService(store, &fakeGenerator{})

	if _, err := svc.PromoteDraftQuestions(context.Background(), "owner", "quiz-1"); err == nil {
		t.Errorf("expected error for empty draft")
	}
}

func TestAddEssayQuestionGeneratesRubricWhenMissing(t *testing.T) {
	store := newFakeStore()
	seedQuiz(store, models.QuizStatusDraft)
	gen := &fakeGenerator{rubric: "Band 8-10: thorough..."}
	svc := NewService(store, &fakeAssembler{relevant: "relevant chunks"}, gen)

	question, err := svc.AddEssayQuestion(context.Background(), "owner", "quiz-1", EssayQuestionInput{
		Prompt:    "Explain photosynthesis.",
		MaxPoints: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if question.Rubric != "Band 8-10: thorough..." {
		t.Errorf("rubric = %q", question.Rubric)
	}
	if gen.gotContext != "relevant chunks" {
		t.Errorf("rubric context = %q, want relevance-ranked context", gen.gotContext)
	}
}

func TestAddEssayQuestionKeepsSuppliedRubric(t *testing.T) {
	store := newFakeStore()
	seedQuiz(store, models.QuizStatusDraft)
	gen := &fakeGenerator{err: errors.New("should not be called")}
	svc := newService(store, gen)

	question, err := svc.AddEssayQuestion(context.Background(), "owner", "quiz-1", EssayQuestionInput{
		Prompt: "Explain osmosis.",
		Rubric: "my rubric",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if question.Rubric != "my rubric" {
		t.Errorf("rubric = %q", question.Rubric)
	}
}

func TestPublishTransitions(t *testing.T) {
	store := newFakeStore()
	seedQuiz(store, models.QuizStatusDraft)
	svc := newService(store, &fakeGenerator{})
	ctx := context.Background()

	if err := svc.Archive(ctx, "owner", "quiz-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("archive from draft: err = %v, want ErrInvalidTransition", err)
	}
	if err := svc.Publish(ctx, "owner", "quiz-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := svc.Publish(ctx, "owner", "quiz-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double publish: err = %v, want ErrInvalidTransition", err)
	}
	if err := svc.Archive(ctx, "owner", "quiz-1"); err != nil {
		t.Fatalf("archive: %v", err)
	}
}

func seedPublishedWithQuestions(store *fakeStore) {
	seedQuiz(store, models.QuizStatusPublished)
	correct := 1
	store.questions["mc-1"] = &models.Question{
		ID: "mc-1", QuizID: "quiz-1",
		Kind: models.QuestionKindMultipleChoice, Prompt: "Pick b.",
		CorrectAnswer: &correct, MaxPoints: 1,
	}
	store.questions["essay-1"] = &models.Question{
		ID: "essay-1", QuizID: "quiz-1",
		Kind: models.QuestionKindEssay, Prompt: "Explain.",
		Rubric: "rubric", MaxPoints: 5,
	}
}

func TestSubmitAnswersScoresMultipleChoice(t *testing.T) {
	store := newFakeStore()
	seedPublishedWithQuestions(store)
	svc := newService(store, &fakeGenerator{})

	submission, err := svc.SubmitAnswers(context.Background(), "taker", "quiz-1", []AnswerInput{
		{QuestionID: "mc-1", Response: "1"},
		{QuestionID: "essay-1", Response: "Because..."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mc, essay *models.Answer
	for i := range submission.Answers {
		switch submission.Answers[i].QuestionID {
		case "mc-1":
			mc = &submission.Answers[i]
		case "essay-1":
			essay = &submission.Answers[i]
		}
	}
	if mc == nil || mc.FinalScore == nil || *mc.FinalScore != 1 {
		t.Errorf("multiple-choice answer not auto-scored: %+v", mc)
	}
	if essay == nil || essay.FinalScore != nil {
		t.Errorf("essay answer should wait for grading: %+v", essay)
	}
}

func TestSubmitAnswersWrongChoiceScoresZero(t *testing.T) {
	store := newFakeStore()
	seedPublishedWithQuestions(store)
	svc := newService(store, &fakeGenerator{})

	submission, err := svc.SubmitAnswers(context.Background(), "taker", "quiz-1", []AnswerInput{
		{QuestionID: "mc-1", Response: "3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score := submission.Answers[0].FinalScore; score == nil || *score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
}

func TestSubmitAnswersRejectsUnpublishedQuiz(t *testing.T) {
	store := newFakeStore()
	seedQuiz(store, models.QuizStatusDraft)
	svc := newService(store, &fakeGenerator{})

	_, err := svc.SubmitAnswers(context.Background(), "taker", "quiz-1", []AnswerInput{
		{QuestionID: "mc-1", Response: "1"},
	})
	if !errors.Is(err, ErrNotPublished) {
		t.Errorf("err = %v, want ErrNotPublished", err)
	}
}

func TestSubmitAnswersRejectsForeignQuestion(t *testing.T) {
	store := newFakeStore()
	seedPublishedWithQuestions(store)
	svc := newService(store, &fakeGenerator{})

	_, err := svc.SubmitAnswers(context.Background(), "taker", "quiz-1", []AnswerInput{
		{QuestionID: "other-quiz-question", Response: "1"},
	})
	if err == nil {
		t.Errorf("expected error for question outside the quiz")
	}
}

func seedGradedSubmission(store *fakeStore) {
	seedPublishedWithQuestions(store)
	store.submissions["sub-1"] = &models.Submission{
		ID: "sub-1", QuizID: "quiz-1", UserID: "taker",
		Answers: []models.Answer{
			{ID: "ans-essay", SubmissionID: "sub-1", QuestionID: "essay-1", Response: "Because..."},
			{ID: "ans-mc", SubmissionID: "sub-1", QuestionID: "mc-1", Response: "1"},
		},
	}
}

func TestSuggestEssayGradeRecordsSuggestion(t *testing.T) {
	store := newFakeStore()
	seedGradedSubmission(store)
	gen := &fakeGenerator{suggestion: generation.GradeSuggestion{SuggestedScore: 4, Feedback: "Good."}}
	svc := newService(store, gen)

	got, err := svc.SuggestEssayGrade(context.Background(), "owner", "sub-1", "ans-essay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SuggestedScore != 4 {
		t.Errorf("score = %d, want 4", got.SuggestedScore)
	}
	if stored := store.suggested["ans-essay"]; stored.SuggestedScore != 4 {
		t.Errorf("suggestion not persisted: %+v", stored)
	}
}

func TestSuggestEssayGradeRejectsChoiceQuestion(t *testing.T) {
	store := newFakeStore()
	seedGradedSubmission(store)
	svc := newService(store, &fakeGenerator{})

	if _, err := svc.SuggestEssayGrade(context.Background(), "owner", "sub-1", "ans-mc"); err == nil {
		t.Errorf("expected error for multiple-choice answer")
	}
}

func TestSuggestEssayGradeForbiddenForNonOwner(t *testing.T) {
	store := newFakeStore()
	seedGradedSubmission(store)
	svc := newService(store, &fakeGenerator{})

	_, err := svc.SuggestEssayGrade(context.Background(), "intruder", "sub-1", "ans-essay")
	if !errors.Is(err, postgres.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestConfirmGradeValidatesRange(t *testing.T) {
	store := newFakeStore()
	seedGradedSubmission(store)
	svc := newService(store, &fakeGenerator{})
	ctx := context.Background()

	if err := svc.ConfirmGrade(ctx, "owner", "sub-1", "ans-essay", 6); err == nil {
		t.Errorf("expected error for score above max points")
	}
	if err := svc.ConfirmGrade(ctx, "owner", "sub-1", "ans-essay", -1); err == nil {
		t.Errorf("expected error for negative score")
	}
	if err := svc.ConfirmGrade(ctx, "owner", "sub-1", "ans-essay", 5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if store.confirmed["ans-essay"] != 5 {
		t.Errorf("confirmed score = %d, want 5", store.confirmed["ans-essay"])
	}
}
