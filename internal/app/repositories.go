package app

import (
	"context"

	"quizzr-service/internal/domain"
)

// QuizRepository stores quiz definitions keyed by slug.
type QuizRepository interface {
	// CreateQuiz returns domain.ErrSlugTaken when the slug is in use.
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	// GetQuiz returns domain.ErrQuizNotFound for unknown slugs.
	GetQuiz(ctx context.Context, slug string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error)
	UpdateStatus(ctx context.Context, slug string, status domain.QuizStatus) error
	DeleteQuiz(ctx context.Context, slug string) error
}

// AttemptStore persists Attempt and Response records keyed by (quiz slug, user id).
// Implementations must make StartAttempt first-writer-wins and RecordScore
// conditional on no score being present.
type AttemptStore interface {
	// StartAttempt inserts attempt and response unless an attempt already exists
	// for the key. It returns the stored attempt and whether this call created it.
	StartAttempt(ctx context.Context, attempt domain.Attempt, response domain.Response) (domain.Attempt, bool, error)
	// GetAttempt returns domain.ErrAttemptNotStarted when no attempt exists.
	GetAttempt(ctx context.Context, key domain.AttemptKey) (domain.Attempt, error)
	// RecordScore returns domain.ErrAlreadySubmitted when a score is recorded and
	// domain.ErrAttemptNotStarted when no response exists.
	RecordScore(ctx context.Context, key domain.AttemptKey, score domain.Score) error
	GetResponse(ctx context.Context, key domain.AttemptKey) (domain.Response, error)
	ListResponses(ctx context.Context, quizSlug string) ([]domain.Response, error)
	CountResponses(ctx context.Context, quizSlug string) (int, error)
	DeleteByQuiz(ctx context.Context, quizSlug string) error
}

// Metrics receives attempt outcomes. A nil Metrics is never passed to services;
// NopMetrics is used instead.
type Metrics interface {
	AttemptStarted(created bool)
	Submission(outcome string)
	Completed(seconds int64)
}

// Submission outcomes reported to Metrics.
const (
	OutcomeScored           = "scored"
	OutcomeExpired          = "expired"
	OutcomeAlreadySubmitted = "already_submitted"
	OutcomeNotStarted       = "not_started"
	OutcomeError            = "error"
)

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) AttemptStarted(bool) {}
func (NopMetrics) Submission(string)   {}
func (NopMetrics) Completed(int64)     {}
