package memory

import (
	"context"
	"sort"
	"sync"

	"quizzr-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. Records are
// keyed directly by the (quiz, user) pair so start is a single check-and-set
// under the lock.
type AttemptStore struct {
	mu        sync.RWMutex
	attempts  map[domain.AttemptKey]domain.Attempt
	responses map[domain.AttemptKey]domain.Response
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[domain.AttemptKey]domain.Attempt),
		responses: make(map[domain.AttemptKey]domain.Response),
	}
}

func (s *AttemptStore) StartAttempt(_ context.Context, attempt domain.Attempt, response domain.Response) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.attempts[attempt.Key]; ok {
		return existing, false, nil
	}
	s.attempts[attempt.Key] = attempt
	if _, ok := s.responses[attempt.Key]; !ok {
		s.responses[attempt.Key] = response
	}
	return attempt, true, nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, key domain.AttemptKey) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[key]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotStarted
	}
	return attempt, nil
}

func (s *AttemptStore) RecordScore(_ context.Context, key domain.AttemptKey, score domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	response, ok := s.responses[key]
	if !ok {
		return domain.ErrAttemptNotStarted
	}
	if response.Scored() {
		return domain.ErrAlreadySubmitted
	}
	marks := score.Marks
	completedIn := score.CompletedIn
	submittedAt := score.SubmittedAt
	response.Marks = &marks
	response.CompletedIn = &completedIn
	response.SubmittedAt = &submittedAt
	s.responses[key] = response
	return nil
}

func (s *AttemptStore) GetResponse(_ context.Context, key domain.AttemptKey) (domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	response, ok := s.responses[key]
	if !ok {
		return domain.Response{}, domain.ErrAttemptNotStarted
	}
	return response, nil
}

func (s *AttemptStore) ListResponses(_ context.Context, quizSlug string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Response, 0)
	for key, response := range s.responses {
		if key.QuizSlug == quizSlug {
			out = append(out, response)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai := s.attempts[domain.AttemptKey{QuizSlug: quizSlug, UserID: out[i].UserID}]
		aj := s.attempts[domain.AttemptKey{QuizSlug: quizSlug, UserID: out[j].UserID}]
		if !ai.StartedAt.Equal(aj.StartedAt) {
			return ai.StartedAt.Before(aj.StartedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *AttemptStore) CountResponses(_ context.Context, quizSlug string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key := range s.responses {
		if key.QuizSlug == quizSlug {
			count++
		}
	}
	return count, nil
}

func (s *AttemptStore) DeleteByQuiz(_ context.Context, quizSlug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.attempts {
		if key.QuizSlug == quizSlug {
			delete(s.attempts, key)
		}
	}
	for key := range s.responses {
		if key.QuizSlug == quizSlug {
			delete(s.responses, key)
		}
	}
	return nil
}
