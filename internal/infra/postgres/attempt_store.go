package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizzr-service/internal/domain"
)

// AttemptStore keeps attempts and responses in Postgres. The (quiz_slug,
// user_id) primary keys make start and score race-free without app locks.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) StartAttempt(ctx context.Context, attempt domain.Attempt, response domain.Response) (domain.Attempt, bool, error) {
	key := attempt.Key
	created := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var startedAt time.Time
		err := tx.QueryRow(ctx,
			`INSERT INTO attempts (quiz_slug, user_id, started_at) VALUES ($1, $2, $3)
			 ON CONFLICT (quiz_slug, user_id) DO NOTHING RETURNING started_at`,
			key.QuizSlug, key.UserID, attempt.StartedAt).Scan(&startedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race or a reload: report the first writer's start.
			if err := tx.QueryRow(ctx, `SELECT started_at FROM attempts WHERE quiz_slug=$1 AND user_id=$2`,
				key.QuizSlug, key.UserID).Scan(&startedAt); err != nil {
				return err
			}
			attempt.StartedAt = startedAt.UTC()
			return nil
		}
		if err != nil {
			return err
		}

		attempt.StartedAt = startedAt.UTC()
		created = true
		_, err = tx.Exec(ctx,
			`INSERT INTO responses (quiz_slug, user_id, student_id, name) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (quiz_slug, user_id) DO NOTHING`,
			key.QuizSlug, key.UserID, response.StudentID, response.Name)
		return err
	})
	if err != nil {
		return domain.Attempt{}, false, domain.Storage("start attempt", err)
	}
	return attempt, created, nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, key domain.AttemptKey) (domain.Attempt, error) {
	var startedAt time.Time
	err := s.pool.QueryRow(ctx, `SELECT started_at FROM attempts WHERE quiz_slug=$1 AND user_id=$2`,
		key.QuizSlug, key.UserID).Scan(&startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotStarted
	}
	if err != nil {
		return domain.Attempt{}, domain.Storage("get attempt", err)
	}
	return domain.Attempt{Key: key, StartedAt: startedAt.UTC()}, nil
}

func (s *AttemptStore) RecordScore(ctx context.Context, key domain.AttemptKey, score domain.Score) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE responses SET marks=$3, completed_in=$4, submitted_at=$5
		 WHERE quiz_slug=$1 AND user_id=$2 AND marks IS NULL`,
		key.QuizSlug, key.UserID, score.Marks, score.CompletedIn, score.SubmittedAt)
	if err != nil {
		return domain.Storage("record score", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM responses WHERE quiz_slug=$1 AND user_id=$2)`,
		key.QuizSlug, key.UserID).Scan(&exists); err != nil {
		return domain.Storage("record score", err)
	}
	if exists {
		return domain.ErrAlreadySubmitted
	}
	return domain.ErrAttemptNotStarted
}

const responseColumns = `r.quiz_slug, r.user_id, r.student_id, r.name, r.marks, r.completed_in, r.submitted_at`

func (s *AttemptStore) GetResponse(ctx context.Context, key domain.AttemptKey) (domain.Response, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+responseColumns+` FROM responses r WHERE r.quiz_slug=$1 AND r.user_id=$2`,
		key.QuizSlug, key.UserID)
	response, err := scanResponse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Response{}, domain.ErrAttemptNotStarted
	}
	if err != nil {
		return domain.Response{}, domain.Storage("get response", err)
	}
	return response, nil
}

func (s *AttemptStore) ListResponses(ctx context.Context, quizSlug string) ([]domain.Response, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+responseColumns+` FROM responses r
		 LEFT JOIN attempts a ON a.quiz_slug = r.quiz_slug AND a.user_id = r.user_id
		 WHERE r.quiz_slug=$1 ORDER BY a.started_at, r.user_id`, quizSlug)
	if err != nil {
		return nil, domain.Storage("list responses", err)
	}
	defer rows.Close()

	responses := make([]domain.Response, 0)
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, domain.Storage("list responses", err)
		}
		responses = append(responses, response)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list responses", err)
	}
	return responses, nil
}

func (s *AttemptStore) CountResponses(ctx context.Context, quizSlug string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM responses WHERE quiz_slug=$1`, quizSlug).Scan(&n); err != nil {
		return 0, domain.Storage("count responses", err)
	}
	return n, nil
}

func (s *AttemptStore) DeleteByQuiz(ctx context.Context, quizSlug string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM responses WHERE quiz_slug=$1`, quizSlug); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM attempts WHERE quiz_slug=$1`, quizSlug)
		return err
	})
	if err != nil {
		return domain.Storage("delete attempts", err)
	}
	return nil
}

func (s *AttemptStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanResponse(row pgx.Row) (domain.Response, error) {
	var (
		response    domain.Response
		marks       *int32
		completedIn *int64
		submittedAt *time.Time
	)
	if err := row.Scan(&response.QuizSlug, &response.UserID, &response.StudentID, &response.Name, &marks, &completedIn, &submittedAt); err != nil {
		return domain.Response{}, err
	}
	if marks != nil {
		m := int(*marks)
		response.Marks = &m
	}
	response.CompletedIn = completedIn
	if submittedAt != nil {
		at := submittedAt.UTC()
		response.SubmittedAt = &at
	}
	return response, nil
}
