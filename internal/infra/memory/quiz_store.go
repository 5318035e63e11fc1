package memory

import (
	"context"
	"sort"
	"sync"

	"quizzr-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizRepository (useful for tests/demos).
// Deleted slugs stay reserved so retained attempts never attach to a new quiz.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
	deleted map[string]struct{}
}

// NewQuizStore seeds the store with quizzes keyed by slug.
func NewQuizStore(seed map[string]domain.Quiz) *QuizStore {
	quizzes := make(map[string]domain.Quiz, len(seed))
	for slug, quiz := range seed {
		quizzes[slug] = quiz
	}
	return &QuizStore{quizzes: quizzes, deleted: make(map[string]struct{})}
}

func (s *QuizStore) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.Slug]; ok {
		return domain.ErrSlugTaken
	}
	if _, ok := s.deleted[quiz.Slug]; ok {
		return domain.ErrSlugTaken
	}
	s.quizzes[quiz.Slug] = quiz
	return nil
}

func (s *QuizStore) GetQuiz(_ context.Context, slug string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if quiz, ok := s.quizzes[slug]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (s *QuizStore) ListQuizzes(_ context.Context, ownerID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, quiz := range s.quizzes {
		if quiz.OwnerID == ownerID {
			out = append(out, quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

func (s *QuizStore) UpdateStatus(_ context.Context, slug string, status domain.QuizStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[slug]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Status = status
	s.quizzes[slug] = quiz
	return nil
}

func (s *QuizStore) DeleteQuiz(_ context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[slug]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, slug)
	s.deleted[slug] = struct{}{}
	return nil
}
