package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizzr-service/internal/domain"
)

const uniqueViolation = "23505"

// QuizStore keeps quizzes in Postgres; questions are a JSONB column.
// DeleteQuiz only sets deleted_at, so the primary key keeps the slug taken.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

const quizColumns = `slug, owner_id, title, domain, guidelines, limit_minutes, status, questions, created_at`

func (s *QuizStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO quizzes (`+quizColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`,
		quiz.Slug, quiz.OwnerID, quiz.Title, quiz.Domain, quiz.Guidelines, quiz.LimitMinutes, string(quiz.Status), string(questions), quiz.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrSlugTaken
		}
		return domain.Storage("create quiz", err)
	}
	return nil
}

func (s *QuizStore) GetQuiz(ctx context.Context, slug string) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE slug=$1 AND deleted_at IS NULL`, slug)
	quiz, err := scanQuiz(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.Storage("get quiz", err)
	}
	return quiz, nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE owner_id=$1 AND deleted_at IS NULL ORDER BY created_at, slug`, ownerID)
	if err != nil {
		return nil, domain.Storage("list quizzes", err)
	}
	defer rows.Close()

	quizzes := make([]domain.Quiz, 0)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, domain.Storage("list quizzes", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list quizzes", err)
	}
	return quizzes, nil
}

func (s *QuizStore) UpdateStatus(ctx context.Context, slug string, status domain.QuizStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quizzes SET status=$2 WHERE slug=$1 AND deleted_at IS NULL`, slug, string(status))
	if err != nil {
		return domain.Storage("update quiz status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) DeleteQuiz(ctx context.Context, slug string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quizzes SET deleted_at=now() WHERE slug=$1 AND deleted_at IS NULL`, slug)
	if err != nil {
		return domain.Storage("delete quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz   domain.Quiz
		status string
		raw    []byte
	)
	if err := row.Scan(&quiz.Slug, &quiz.OwnerID, &quiz.Title, &quiz.Domain, &quiz.Guidelines, &quiz.LimitMinutes, &status, &raw, &quiz.CreatedAt); err != nil {
		return domain.Quiz{}, err
	}
	quiz.Status = domain.QuizStatus(status)
	if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	return quiz, nil
}
