package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizzr-service/internal/app"
	"quizzr-service/internal/domain"
)

func TestSubmitWithinLimitScoresOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(app.ScoreServerSide)

	if _, err := h.ledger.RegisterStart(ctx, "quiz-1", "u1", app.Student{ID: "s-1", Name: "Alice"}); err != nil {
		t.Fatalf("register start: %v", err)
	}
	h.clock.Advance(2 * time.Minute)

	result, err := h.engine.SubmitAttempt(ctx, "quiz-1", "u1", []domain.SubmittedAnswer{
		{QuestionID: "q1", OptionID: "q1-b"}, // correct, 5 marks
		{QuestionID: "q2", OptionID: "q2-b"}, // wrong
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 5 || result.Total != 15 || result.CompletedIn != 120 {
		t.Fatalf("expected {5 15 120}, got %+v", result)
	}

	response, _ := h.attempts.GetResponse(ctx, domain.AttemptKey{QuizSlug: "quiz-1", UserID: "u1"})
	if response.Marks == nil || *response.Marks != 5 || *response.CompletedIn != 120 {
		t.Fatalf("expected persisted score, got %+v", response)
	}

	// A later submit past the limit is rejected and the score is untouched.
	h.clock.Advance(9 * time.Minute)
	if _, err := h.engine.SubmitAttempt(ctx, "quiz-1", "u1", nil); !errors.Is(err, domain.ErrTimeLimitExceeded) {
		t.Fatalf("expected time limit exceeded, got %v", err)
	}
	response, _ = h.attempts.GetResponse(ctx, domain.AttemptKey{QuizSlug: "quiz-1", UserID: "u1"})
	if *response.Marks != 5 {
		t.Fatalf("score changed after rejected submit: %+v", response)
	}
}

func TestSubmitTwiceInTimeKeepsFirstScore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(app.ScoreServerSide)

	_, _ = h.ledger.RegisterStart(ctx, "quiz-1", "u1", app.Student{ID: "s-1", Name: "Alice"})
	h.clock.Advance(time.Minute)
	if _, err := h.engine.SubmitAttempt(ctx, "quiz-1", "u1", []domain.SubmittedAnswer{{QuestionID: "q2", OptionID: "q2-a"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.clock.Advance(time.Minute)
	if _, err := h.engine.SubmitAttempt(ctx, "quiz-1", "u1", nil); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	response, _ := h.attempts.GetResponse(ctx, domain.AttemptKey{QuizSlug: "quiz-1", UserID: "u1"})
	if *response.Marks != 10 {
		t.Fatalf("expected first score 10 kept, got %d", *response.Marks)
	}
}

func TestSubmitAtExactLimitIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(app.ScoreServerSide)

	_, _ = h.ledger.RegisterStart(ctx, "quiz-1", "u1", app.Student{})
	h.clock.Advance(10 * time.Minute)
	if _, err := h.engine.SubmitAttempt(ctx, "quiz-1", "u1", nil); !errors.Is(err, domain.ErrTimeLimitExceeded) {
		t.Fatalf("expected elapsed == limit to be rejected, got %v", err)
	}
	response, _ := h.attempts.GetResponse(ctx, domain.AttemptKey{QuizSlug: "quiz-1", UserID: "u1"})
	if response.Scored() {
		t.Fatalf("expired attempt must not persist a score")
	}
}

func TestSubmitAcrossMidnight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(app.ScoreServerSide) // clock starts at 23:55

	_, _ = h.ledger.RegisterStart(ctx, "quiz-1", "u1", app.Student{})
	h.clock.Advance(8 * time.Minute) // 00:03 next day
	result, err := h.engine.SubmitAttempt(ctx, "quiz-1", "u1", nil)
	if err != nil {
		t.Fatalf("expected in-time submit across midnight, got %v", err)
	}
	if result.CompletedIn != 480 {
		t.Fatalf("expected 480s, got %d", result.CompletedIn)
	}
}

func TestSubmitWithoutStart(t *testing.T) {
	h := newHarness(app.ScoreServerSide)
	_, err := h.engine.SubmitAttempt(context.Background(), "quiz-1", "u1", []domain.SubmittedAnswer{{QuestionID: "q1", OptionID: "q1-b"}})
	if !errors.Is(err, domain.ErrAttemptNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
}

func TestSubmitUnknownQuiz(t *testing.T) {
	h := newHarness(app.ScoreServerSide)
	if _, err := h.engine.SubmitAttempt(context.Background(), "nope", "u1", nil); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServerSideScoringIgnoresClientClaims(t *testing.T) {
	ctx := context.Background()
	h := newHarness(app.ScoreServerSide)
	_, _ = h.ledger.RegisterStart(ctx, "quiz-1", "u1", app.Student{})

	result, err := h.engine.SubmitAttempt(ctx, "quiz-1", "u1", []domain.SubmittedAnswer{
		{QuestionID: "q1", OptionID: "q1-a", Correct: true, Marks: 100}, // wrong option, lying client
		{QuestionID: "q2", OptionID: "q2-a", Correct: false, Marks: 0},  // right option
		{QuestionID: "q2", OptionID: "q2-a"},                            // duplicate answer
		{QuestionID: "q9", OptionID: "x", Correct: true, Marks: 50},     // unknown question
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 10 || result.Total != 15 {
		t.Fatalf("expected {10 15}, got %+v", result)
	}
}

func TestTrustClientScoringMayExceedTotal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(app.ScoreTrustClient)
	_, _ = h.ledger.RegisterStart(ctx, "quiz-1", "u1", app.Student{})

	result, err := h.engine.SubmitAttempt(ctx, "quiz-1", "u1", []domain.SubmittedAnswer{
		{QuestionID: "q1", Correct: true, Marks: 100},
		{QuestionID: "q2", Correct: false, Marks: 10},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 100 || result.Total != 15 {
		t.Fatalf("expected client-asserted {100 15}, got %+v", result)
	}
}

func TestSubmitReportsMetrics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(app.ScoreServerSide)
	metrics := &recordingMetrics{}
	ledger := app.NewAttemptLedgerWithClock(h.quizzes, h.attempts, metrics, h.clock.Now)
	engine := app.NewScoringEngineWithClock(h.quizzes, h.attempts, ledger, app.ScoreServerSide, metrics, h.clock.Now)

	_, _ = ledger.RegisterStart(ctx, "quiz-1", "u1", app.Student{})
	_, _ = ledger.RegisterStart(ctx, "quiz-1", "u1", app.Student{})
	_, _ = engine.SubmitAttempt(ctx, "quiz-1", "u2", nil)
	_, _ = engine.SubmitAttempt(ctx, "quiz-1", "u1", nil)

	if metrics.created != 1 || metrics.repeated != 1 {
		t.Fatalf("expected 1 created and 1 repeat start, got %+v", metrics)
	}
	if metrics.outcomes[app.OutcomeNotStarted] != 1 || metrics.outcomes[app.OutcomeScored] != 1 {
		t.Fatalf("unexpected outcomes %+v", metrics.outcomes)
	}
}

type recordingMetrics struct {
	created, repeated int
	outcomes          map[string]int
}

func (m *recordingMetrics) AttemptStarted(created bool) {
	if created {
		m.created++
	} else {
		m.repeated++
	}
}

func (m *recordingMetrics) Submission(outcome string) {
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *recordingMetrics) Completed(int64) {}
