package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"quizzr-service/internal/app"
	"quizzr-service/internal/domain"
)

// QuizCache caches quiz definitions in Redis (JSON per slug) and falls back to
// the backing repository on cache miss. Writes invalidate the slug so status
// changes are visible to every instance. Invalidation bumps a per-slug
// generation key and fills only land while the generation they read is
// current, so a fill racing a write cannot restore the old quiz.
type QuizCache struct {
	app.QuizRepository
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizCache(client *redis.Client, backing app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		QuizRepository: backing,
		client:         client,
		ttl:            ttl,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, slug string) (domain.Quiz, error) {
	if quiz, ok := c.cached(ctx, slug); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(slug, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.cached(ctx, slug); ok {
			return quiz, nil
		}

		gen, err := c.client.Get(ctx, genKey(slug)).Result()
		if err != nil && err != redis.Nil {
			log.Warn().Err(err).Str("quiz", slug).Msg("quiz cache generation read failed")
			return c.QuizRepository.GetQuiz(ctx, slug)
		}

		quiz, err := c.QuizRepository.GetQuiz(ctx, slug)
		if err != nil {
			return domain.Quiz{}, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			if data, err := json.Marshal(quiz); err == nil {
				err := fillScript.Run(ctx, c.client, []string{quizKey(slug), genKey(slug)}, gen, data, ttl.Milliseconds()).Err()
				if err != nil && err != redis.Nil {
					log.Warn().Err(err).Str("quiz", slug).Msg("quiz cache fill failed")
				}
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) UpdateStatus(ctx context.Context, slug string, status domain.QuizStatus) error {
	if err := c.QuizRepository.UpdateStatus(ctx, slug, status); err != nil {
		return err
	}
	return c.invalidate(ctx, slug)
}

func (c *QuizCache) DeleteQuiz(ctx context.Context, slug string) error {
	if err := c.QuizRepository.DeleteQuiz(ctx, slug); err != nil {
		return err
	}
	return c.invalidate(ctx, slug)
}

func (c *QuizCache) cached(ctx context.Context, slug string) (domain.Quiz, bool) {
	data, err := c.client.Get(ctx, quizKey(slug)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("quiz", slug).Msg("quiz cache read failed")
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (c *QuizCache) invalidate(ctx context.Context, slug string) error {
	defer c.sf.Forget(slug)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, genKey(slug))
	pipe.Del(ctx, quizKey(slug))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Storage("invalidate quiz cache", err)
	}
	return nil
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// fillScript writes the cached quiz only if the generation is still the one
// read before loading it. A missing generation key reads as "".
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or ''
if current ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func genKey(slug string) string {
	return "quizzr:quizgen:" + slug
}

func quizKey(slug string) string {
	return "quizzr:quiz:" + slug
}
