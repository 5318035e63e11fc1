package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"quizzr-service/internal/domain"
)

// DeletePolicy decides what happens to attempt data when a quiz is deleted.
type DeletePolicy string

const (
	// RetainAttempts keeps Attempt and Response records for audit.
	RetainAttempts DeletePolicy = "retain"
	// PurgeAttempts removes them together with the quiz.
	PurgeAttempts DeletePolicy = "purge"
)

// ParseDeletePolicy maps a config value to a policy, defaulting to retain.
func ParseDeletePolicy(raw string) (DeletePolicy, error) {
	switch DeletePolicy(raw) {
	case "", RetainAttempts:
		return RetainAttempts, nil
	case PurgeAttempts:
		return PurgeAttempts, nil
	}
	return "", fmt.Errorf("unknown delete policy %q", raw)
}

// AnalysisWriter renders an analysis table, e.g. as a spreadsheet.
type AnalysisWriter interface {
	WriteAnalysis(w io.Writer, quiz domain.Quiz, responses []domain.Response) error
}

// QuizService contains the author-side quiz use cases.
type QuizService struct {
	quizzes  QuizRepository
	attempts AttemptStore
	policy   DeletePolicy
	validate *validator.Validate
	now      func() time.Time
}

func NewQuizService(quizzes QuizRepository, attempts AttemptStore, policy DeletePolicy) *QuizService {
	return &QuizService{
		quizzes:  quizzes,
		attempts: attempts,
		policy:   policy,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// CreateQuiz validates the draft, assigns ids and stores it as active.
func (s *QuizService) CreateQuiz(ctx context.Context, ownerID string, draft domain.Quiz) (domain.Quiz, error) {
	if err := s.validate.Struct(draft); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", domain.ErrInvalidQuiz, err)
	}

	quiz := draft
	quiz.OwnerID = ownerID
	quiz.Status = domain.StatusActive
	quiz.CreatedAt = s.now().UTC()
	if quiz.Slug == "" {
		quiz.Slug = uuid.NewString()
	}
	quiz.Questions = make([]domain.Question, len(draft.Questions))
	for i, question := range draft.Questions {
		if question.ID == "" {
			question.ID = uuid.NewString()
		}
		options := make([]domain.Option, len(question.Options))
		for j, opt := range question.Options {
			if opt.ID == "" {
				opt.ID = uuid.NewString()
			}
			options[j] = opt
		}
		question.Options = options
		quiz.Questions[i] = question
	}

	if err := s.quizzes.CreateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	log.Info().Str("quiz", quiz.Slug).Str("owner", ownerID).Int("questions", len(quiz.Questions)).Msg("quiz created")
	return quiz, nil
}

// GetQuiz returns the full definition, correctness included.
func (s *QuizService) GetQuiz(ctx context.Context, slug string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, slug)
}

// ListQuizzes returns the owner's quizzes with response counts.
func (s *QuizService) ListQuizzes(ctx context.Context, ownerID string) ([]domain.QuizSummary, error) {
	quizzes, err := s.quizzes.ListQuizzes(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.QuizSummary, 0, len(quizzes))
	for _, quiz := range quizzes {
		count, err := s.attempts.CountResponses(ctx, quiz.Slug)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.QuizSummary{
			Slug:           quiz.Slug,
			Title:          quiz.Title,
			Domain:         quiz.Domain,
			LimitMinutes:   quiz.LimitMinutes,
			Status:         quiz.Status,
			TotalQuestions: len(quiz.Questions),
			Responses:      count,
		})
	}
	return summaries, nil
}

// SetStatus toggles a quiz between active and inactive.
func (s *QuizService) SetStatus(ctx context.Context, ownerID, slug string, status domain.QuizStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidQuiz, status)
	}
	if _, err := s.owned(ctx, ownerID, slug); err != nil {
		return err
	}
	return s.quizzes.UpdateStatus(ctx, slug, status)
}

// DeleteQuiz removes the quiz and, under PurgeAttempts, its attempt data.
func (s *QuizService) DeleteQuiz(ctx context.Context, ownerID, slug string) error {
	if _, err := s.owned(ctx, ownerID, slug); err != nil {
		return err
	}
	if err := s.quizzes.DeleteQuiz(ctx, slug); err != nil {
		return err
	}
	if s.policy == PurgeAttempts {
		if err := s.attempts.DeleteByQuiz(ctx, slug); err != nil {
			return err
		}
	}
	log.Info().Str("quiz", slug).Str("policy", string(s.policy)).Msg("quiz deleted")
	return nil
}

// Analysis returns every Response Record of the owner's quiz.
func (s *QuizService) Analysis(ctx context.Context, ownerID, slug string) ([]domain.Response, error) {
	if _, err := s.owned(ctx, ownerID, slug); err != nil {
		return nil, err
	}
	return s.attempts.ListResponses(ctx, slug)
}

// ExportAnalysis writes the analysis table through out.
func (s *QuizService) ExportAnalysis(ctx context.Context, ownerID, slug string, out AnalysisWriter, w io.Writer) error {
	quiz, err := s.owned(ctx, ownerID, slug)
	if err != nil {
		return err
	}
	responses, err := s.attempts.ListResponses(ctx, slug)
	if err != nil {
		return err
	}
	return out.WriteAnalysis(w, quiz, responses)
}

func (s *QuizService) owned(ctx context.Context, ownerID, slug string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, slug)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}
