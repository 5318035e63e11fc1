package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizzr-service/internal/app"
	"quizzr-service/internal/domain"
)

// CachedQuizRepository caches quizzes with TTL to avoid repeated DB hits.
// Writes go straight to the backing repository and invalidate the slug.
// Each invalidation bumps a per-slug generation; a fill that started before
// the bump is discarded so a stale read never outlives a write.
type CachedQuizRepository struct {
	app.QuizRepository
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
	gens  map[string]uint64
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewCachedQuizRepository(backing app.QuizRepository, ttl time.Duration) *CachedQuizRepository {
	return &CachedQuizRepository{
		QuizRepository: backing,
		ttl:            ttl,
		clock:          time.Now,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:          make(map[string]cachedQuiz),
		gens:           make(map[string]uint64),
	}
}

func (r *CachedQuizRepository) GetQuiz(ctx context.Context, slug string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(slug); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(slug, func() (interface{}, error) {
		if quiz, ok := r.lookup(slug); ok {
			return quiz, nil
		}

		r.mu.RLock()
		gen := r.gens[slug]
		r.mu.RUnlock()

		quiz, err := r.QuizRepository.GetQuiz(ctx, slug)
		if err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		if r.gens[slug] == gen {
			r.cache[slug] = cachedQuiz{
				quiz:      quiz,
				expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
			}
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *CachedQuizRepository) UpdateStatus(ctx context.Context, slug string, status domain.QuizStatus) error {
	defer r.invalidate(slug)
	return r.QuizRepository.UpdateStatus(ctx, slug, status)
}

func (r *CachedQuizRepository) DeleteQuiz(ctx context.Context, slug string) error {
	defer r.invalidate(slug)
	return r.QuizRepository.DeleteQuiz(ctx, slug)
}

func (r *CachedQuizRepository) lookup(slug string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[slug]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (r *CachedQuizRepository) invalidate(slug string) {
	r.mu.Lock()
	delete(r.cache, slug)
	r.gens[slug]++
	r.mu.Unlock()
	// Later readers must not join a flight that read before the write.
	r.sf.Forget(slug)
}

func (r *CachedQuizRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
