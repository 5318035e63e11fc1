package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"quizzr-service/internal/domain"
)

// ScoringMode selects where correctness and marks come from.
type ScoringMode int

const (
	// ScoreServerSide re-derives correctness and marks from the stored quiz.
	ScoreServerSide ScoringMode = iota
	// ScoreTrustClient sums client-asserted marks of answers flagged correct.
	// Scores may exceed the quiz total if the client lies.
	ScoreTrustClient
)

// ScoringEngine validates submissions against the time budget and records the
// score at most once.
type ScoringEngine struct {
	quizzes  QuizRepository
	attempts AttemptStore
	ledger   *AttemptLedger
	mode     ScoringMode
	metrics  Metrics
	now      func() time.Time
}

func NewScoringEngine(quizzes QuizRepository, attempts AttemptStore, ledger *AttemptLedger, mode ScoringMode, metrics Metrics) *ScoringEngine {
	return NewScoringEngineWithClock(quizzes, attempts, ledger, mode, metrics, time.Now)
}

// NewScoringEngineWithClock allows deterministic timestamps in tests.
func NewScoringEngineWithClock(quizzes QuizRepository, attempts AttemptStore, ledger *AttemptLedger, mode ScoringMode, metrics Metrics, now func() time.Time) *ScoringEngine {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ScoringEngine{
		quizzes:  quizzes,
		attempts: attempts,
		ledger:   ledger,
		mode:     mode,
		metrics:  metrics,
		now:      now,
	}
}

// Mode reports the configured scoring mode.
func (e *ScoringEngine) Mode() ScoringMode {
	return e.mode
}

// SubmitAttempt scores answers for (quizSlug, userID). Elapsed time is measured
// against server time at the moment of the call.
func (e *ScoringEngine) SubmitAttempt(ctx context.Context, quizSlug, userID string, answers []domain.SubmittedAnswer) (domain.Result, error) {
	result, err := e.submit(ctx, quizSlug, userID, answers)
	e.metrics.Submission(outcomeOf(err))
	if err == nil {
		e.metrics.Completed(result.CompletedIn)
	}
	return result, err
}

func (e *ScoringEngine) submit(ctx context.Context, quizSlug, userID string, answers []domain.SubmittedAnswer) (domain.Result, error) {
	quiz, err := e.quizzes.GetQuiz(ctx, quizSlug)
	if err != nil {
		return domain.Result{}, err
	}

	startedAt, err := e.ledger.GetStartTime(ctx, quizSlug, userID)
	if err != nil {
		return domain.Result{}, err
	}

	total := quiz.TotalMarks()
	var score int
	if e.mode == ScoreTrustClient {
		score = scoreTrustingClient(answers)
	} else {
		score = scoreServerSide(quiz, answers)
	}

	now := e.now().UTC()
	elapsed := now.Sub(startedAt)
	if elapsed >= quiz.Limit() {
		log.Info().Str("quiz", quizSlug).Str("user", userID).Dur("elapsed", elapsed).Msg("submission past time limit")
		return domain.Result{}, domain.ErrTimeLimitExceeded
	}
	if elapsed < 0 {
		elapsed = 0
	}
	completedIn := int64(elapsed / time.Second)

	err = e.attempts.RecordScore(ctx, domain.AttemptKey{QuizSlug: quizSlug, UserID: userID}, domain.Score{
		Marks:       score,
		CompletedIn: completedIn,
		SubmittedAt: now,
	})
	if err != nil {
		return domain.Result{}, err
	}

	log.Info().Str("quiz", quizSlug).Str("user", userID).Int("score", score).Int("total", total).Int64("completedIn", completedIn).Msg("attempt scored")
	return domain.Result{Score: score, Total: total, CompletedIn: completedIn}, nil
}

// scoreServerSide matches answers to questions by id and uses the stored
// correctness and marks. Each question counts once; the first answer wins.
func scoreServerSide(quiz domain.Quiz, answers []domain.SubmittedAnswer) int {
	questions := make(map[string]*domain.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		questions[quiz.Questions[i].ID] = &quiz.Questions[i]
	}

	seen := make(map[string]struct{}, len(answers))
	score := 0
	for _, answer := range answers {
		question, ok := questions[answer.QuestionID]
		if !ok {
			continue
		}
		if _, dup := seen[answer.QuestionID]; dup {
			continue
		}
		seen[answer.QuestionID] = struct{}{}

		for _, opt := range question.Options {
			if opt.ID == answer.OptionID {
				if opt.Correct {
					score += question.Marks
				}
				break
			}
		}
	}
	return score
}

func scoreTrustingClient(answers []domain.SubmittedAnswer) int {
	score := 0
	for _, answer := range answers {
		if answer.Correct {
			score += answer.Marks
		}
	}
	return score
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeScored
	case errors.Is(err, domain.ErrTimeLimitExceeded):
		return OutcomeExpired
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return OutcomeAlreadySubmitted
	case errors.Is(err, domain.ErrAttemptNotStarted):
		return OutcomeNotStarted
	default:
		return OutcomeError
	}
}
