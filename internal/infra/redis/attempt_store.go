package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quizzr-service/internal/domain"
)

// AttemptStore keeps attempts and responses in Redis.
// Layout:
//
//	quizzr:attempt:{len(slug)}:{slug}:{user}   STRING  start instant (unix seconds)
//	quizzr:response:{len(slug)}:{slug}:{user}  HASH    student_id, name, marks, completed_in, submitted_at
//	quizzr:students:{slug}                     SET     user ids that started the quiz
//
// The slug length prefix keeps composite keys unambiguous when a slug or
// user id contains ':'.
//
// Start and score are Lua scripts so each is a single atomic step per key.
type AttemptStore struct {
	client *redis.Client
}

func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

// startScript returns {created, startedAt}. The attempt key is only set when
// absent, and the response hash and student set are written only on creation.
var startScript = redis.NewScript(`
local created = redis.call('SET', KEYS[1], ARGV[1], 'NX')
if created then
  redis.call('HSET', KEYS[2], 'student_id', ARGV[2], 'name', ARGV[3])
  redis.call('SADD', KEYS[3], ARGV[4])
  return {1, ARGV[1]}
end
return {0, redis.call('GET', KEYS[1])}
`)

// scoreScript returns 1 when the score was written, 0 when a score already
// exists and -1 when there is no response.
var scoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HSETNX', KEYS[1], 'marks', ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'completed_in', ARGV[2], 'submitted_at', ARGV[3])
return 1
`)

func (s *AttemptStore) StartAttempt(ctx context.Context, attempt domain.Attempt, response domain.Response) (domain.Attempt, bool, error) {
	key := attempt.Key
	res, err := startScript.Run(ctx, s.client,
		[]string{attemptKey(key), responseKey(key), studentsKey(key.QuizSlug)},
		attempt.StartedAt.Unix(), response.StudentID, response.Name, key.UserID,
	).Slice()
	if err != nil {
		return domain.Attempt{}, false, domain.Storage("start attempt", err)
	}
	if len(res) != 2 {
		return domain.Attempt{}, false, domain.Storage("start attempt", fmt.Errorf("unexpected script reply %v", res))
	}
	created, _ := res[0].(int64)
	startedAt, err := parseUnix(res[1])
	if err != nil {
		return domain.Attempt{}, false, domain.Storage("start attempt", err)
	}
	return domain.Attempt{Key: key, StartedAt: startedAt}, created == 1, nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, key domain.AttemptKey) (domain.Attempt, error) {
	raw, err := s.client.Get(ctx, attemptKey(key)).Result()
	if err == redis.Nil {
		return domain.Attempt{}, domain.ErrAttemptNotStarted
	}
	if err != nil {
		return domain.Attempt{}, domain.Storage("get attempt", err)
	}
	startedAt, err := parseUnix(raw)
	if err != nil {
		return domain.Attempt{}, domain.Storage("get attempt", err)
	}
	return domain.Attempt{Key: key, StartedAt: startedAt}, nil
}

func (s *AttemptStore) RecordScore(ctx context.Context, key domain.AttemptKey, score domain.Score) error {
	res, err := scoreScript.Run(ctx, s.client,
		[]string{responseKey(key)},
		score.Marks, score.CompletedIn, score.SubmittedAt.Unix(),
	).Int()
	if err != nil {
		return domain.Storage("record score", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return domain.ErrAlreadySubmitted
	default:
		return domain.ErrAttemptNotStarted
	}
}

func (s *AttemptStore) GetResponse(ctx context.Context, key domain.AttemptKey) (domain.Response, error) {
	fields, err := s.client.HGetAll(ctx, responseKey(key)).Result()
	if err != nil {
		return domain.Response{}, domain.Storage("get response", err)
	}
	if len(fields) == 0 {
		return domain.Response{}, domain.ErrAttemptNotStarted
	}
	return buildResponse(key, fields), nil
}

// ListResponses returns responses ordered by start time, then user id.
func (s *AttemptStore) ListResponses(ctx context.Context, quizSlug string) ([]domain.Response, error) {
	users, err := s.client.SMembers(ctx, studentsKey(quizSlug)).Result()
	if err != nil {
		return nil, domain.Storage("list responses", err)
	}
	if len(users) == 0 {
		return []domain.Response{}, nil
	}

	pipe := s.client.Pipeline()
	fieldCmds := make([]*redis.MapStringStringCmd, len(users))
	startCmds := make([]*redis.StringCmd, len(users))
	for i, user := range users {
		key := domain.AttemptKey{QuizSlug: quizSlug, UserID: user}
		fieldCmds[i] = pipe.HGetAll(ctx, responseKey(key))
		startCmds[i] = pipe.Get(ctx, attemptKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, domain.Storage("list responses", err)
	}

	type row struct {
		response  domain.Response
		startedAt time.Time
	}
	rows := make([]row, 0, len(users))
	for i, user := range users {
		fields := fieldCmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		startedAt, _ := parseUnix(startCmds[i].Val())
		rows = append(rows, row{
			response:  buildResponse(domain.AttemptKey{QuizSlug: quizSlug, UserID: user}, fields),
			startedAt: startedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].startedAt.Equal(rows[j].startedAt) {
			return rows[i].startedAt.Before(rows[j].startedAt)
		}
		return rows[i].response.UserID < rows[j].response.UserID
	})

	responses := make([]domain.Response, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, r.response)
	}
	return responses, nil
}

func (s *AttemptStore) CountResponses(ctx context.Context, quizSlug string) (int, error) {
	n, err := s.client.SCard(ctx, studentsKey(quizSlug)).Result()
	if err != nil {
		return 0, domain.Storage("count responses", err)
	}
	return int(n), nil
}

func (s *AttemptStore) DeleteByQuiz(ctx context.Context, quizSlug string) error {
	users, err := s.client.SMembers(ctx, studentsKey(quizSlug)).Result()
	if err != nil {
		return domain.Storage("delete attempts", err)
	}
	keys := make([]string, 0, 2*len(users)+1)
	for _, user := range users {
		key := domain.AttemptKey{QuizSlug: quizSlug, UserID: user}
		keys = append(keys, attemptKey(key), responseKey(key))
	}
	keys = append(keys, studentsKey(quizSlug))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return domain.Storage("delete attempts", err)
	}
	return nil
}

func attemptKey(key domain.AttemptKey) string {
	return "quizzr:attempt:" + compositeID(key)
}

func responseKey(key domain.AttemptKey) string {
	return "quizzr:response:" + compositeID(key)
}

func compositeID(key domain.AttemptKey) string {
	return strconv.Itoa(len(key.QuizSlug)) + ":" + key.QuizSlug + ":" + key.UserID
}

func studentsKey(quizSlug string) string {
	return "quizzr:students:" + quizSlug
}

func buildResponse(key domain.AttemptKey, fields map[string]string) domain.Response {
	response := domain.Response{
		QuizSlug:  key.QuizSlug,
		UserID:    key.UserID,
		StudentID: fields["student_id"],
		Name:      fields["name"],
	}
	if raw, ok := fields["marks"]; ok {
		if marks, err := strconv.Atoi(raw); err == nil {
			response.Marks = &marks
		}
	}
	if raw, ok := fields["completed_in"]; ok {
		if completedIn, err := strconv.ParseInt(raw, 10, 64); err == nil {
			response.CompletedIn = &completedIn
		}
	}
	if raw, ok := fields["submitted_at"]; ok {
		if submittedAt, err := parseUnix(raw); err == nil {
			response.SubmittedAt = &submittedAt
		}
	}
	return response
}

func parseUnix(v interface{}) (time.Time, error) {
	var raw string
	switch t := v.(type) {
	case string:
		raw = t
	case int64:
		return time.Unix(t, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp %T", v)
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
