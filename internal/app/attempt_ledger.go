package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"quizzr-service/internal/domain"
)

// Student is the identity a student types in before starting.
type Student struct {
	ID   string
	Name string
}

// AttemptLedger records, once per (quiz, student), when the attempt started.
type AttemptLedger struct {
	quizzes  QuizRepository
	attempts AttemptStore
	metrics  Metrics
	now      func() time.Time
}

func NewAttemptLedger(quizzes QuizRepository, attempts AttemptStore, metrics Metrics) *AttemptLedger {
	return NewAttemptLedgerWithClock(quizzes, attempts, metrics, time.Now)
}

// NewAttemptLedgerWithClock allows deterministic timestamps in tests.
func NewAttemptLedgerWithClock(quizzes QuizRepository, attempts AttemptStore, metrics Metrics, now func() time.Time) *AttemptLedger {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &AttemptLedger{quizzes: quizzes, attempts: attempts, metrics: metrics, now: now}
}

// RegisterStart stamps the start of an attempt. Repeat calls (page reloads,
// concurrent first visits) return the attempt recorded by the first writer.
func (l *AttemptLedger) RegisterStart(ctx context.Context, quizSlug, userID string, student Student) (domain.Attempt, error) {
	quiz, err := l.quizzes.GetQuiz(ctx, quizSlug)
	if err != nil {
		return domain.Attempt{}, err
	}

	key := domain.AttemptKey{QuizSlug: quizSlug, UserID: userID}
	if quiz.Status != domain.StatusActive {
		// A student who already started keeps their attempt even if the author
		// deactivates the quiz mid-way.
		existing, err := l.attempts.GetAttempt(ctx, key)
		if errors.Is(err, domain.ErrAttemptNotStarted) {
			return domain.Attempt{}, domain.ErrQuizInactive
		}
		if err != nil {
			return domain.Attempt{}, err
		}
		return existing, nil
	}

	attempt := domain.Attempt{
		Key:       key,
		StartedAt: l.now().UTC().Truncate(time.Second),
	}
	response := domain.Response{
		QuizSlug:  quizSlug,
		UserID:    userID,
		StudentID: student.ID,
		Name:      student.Name,
	}

	stored, created, err := l.attempts.StartAttempt(ctx, attempt, response)
	if err != nil {
		return domain.Attempt{}, err
	}
	l.metrics.AttemptStarted(created)
	if created {
		log.Info().Str("quiz", quizSlug).Str("user", userID).Time("startedAt", stored.StartedAt).Msg("attempt started")
	}
	return stored, nil
}

// GetStartTime returns the recorded start, or domain.ErrAttemptNotStarted.
func (l *AttemptLedger) GetStartTime(ctx context.Context, quizSlug, userID string) (time.Time, error) {
	attempt, err := l.attempts.GetAttempt(ctx, domain.AttemptKey{QuizSlug: quizSlug, UserID: userID})
	if err != nil {
		return time.Time{}, err
	}
	return attempt.StartedAt, nil
}
