package app_test

import (
	"sync"
	"time"

	"quizzr-service/internal/app"
	"quizzr-service/internal/domain"
	"quizzr-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock    *fakeClock
	quizzes  *memory.QuizStore
	attempts *memory.AttemptStore
	ledger   *app.AttemptLedger
	engine   *app.ScoringEngine
}

func newHarness(mode app.ScoringMode) *harness {
	clock := newFakeClock(time.Date(2024, 3, 1, 23, 55, 0, 0, time.UTC))
	quizzes := memory.NewQuizStore(map[string]domain.Quiz{"quiz-1": sampleQuiz()})
	attempts := memory.NewAttemptStore()
	ledger := app.NewAttemptLedgerWithClock(quizzes, attempts, nil, clock.Now)
	engine := app.NewScoringEngineWithClock(quizzes, attempts, ledger, mode, nil, clock.Now)
	return &harness{clock: clock, quizzes: quizzes, attempts: attempts, ledger: ledger, engine: engine}
}

// sampleQuiz has two questions worth 5 and 10 marks and a 10 minute limit.
func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Slug:         "quiz-1",
		OwnerID:      "author-1",
		Title:        "General knowledge",
		LimitMinutes: 10,
		Status:       domain.StatusActive,
		Questions: []domain.Question{
			{
				ID:    "q1",
				Title: "What is 2 + 2?",
				Marks: 5,
				Options: []domain.Option{
					{ID: "q1-a", Value: "3"},
					{ID: "q1-b", Value: "4", Correct: true},
				},
			},
			{
				ID:    "q2",
				Title: "Capital of France?",
				Marks: 10,
				Options: []domain.Option{
					{ID: "q2-a", Value: "Paris", Correct: true},
					{ID: "q2-b", Value: "Rome"},
				},
			},
		},
	}
}
