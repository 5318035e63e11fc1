package domain

import "time"

// QuizStatus controls whether students may start a quiz.
type QuizStatus string

const (
	StatusActive   QuizStatus = "active"
	StatusInactive QuizStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s QuizStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Value   string `json:"value" validate:"required"`
	Correct bool   `json:"isCorrect"`
}

// Question models an MCQ question worth Marks points.
type Question struct {
	ID      string   `json:"id"`
	Title   string   `json:"title" validate:"required"`
	Marks   int      `json:"marks" validate:"min=1"`
	Options []Option `json:"options" validate:"min=1,dive"`
}

// Quiz is an author-owned, slug-addressed collection of questions.
type Quiz struct {
	Slug         string     `json:"url" validate:"omitempty,max=100,excludesall=:/?#"`
	OwnerID      string     `json:"userId"`
	Title        string     `json:"title" validate:"required,min=2,max=50"`
	Domain       string     `json:"domain"`
	Guidelines   string     `json:"guidelines"`
	LimitMinutes int        `json:"limit" validate:"min=1,max=1440"`
	Status       QuizStatus `json:"status"`
	Questions    []Question `json:"questions" validate:"min=1,dive"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// TotalMarks is the maximum achievable score.
func (q Quiz) TotalMarks() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Marks
	}
	return total
}

// Limit returns the time budget as a duration.
func (q Quiz) Limit() time.Duration {
	return time.Duration(q.LimitMinutes) * time.Minute
}

// Public returns a copy safe to hand to students: option correctness is dropped.
func (q Quiz) Public() PublicQuiz {
	questions := make([]PublicQuestion, 0, len(q.Questions))
	for _, question := range q.Questions {
		options := make([]PublicOption, 0, len(question.Options))
		for _, opt := range question.Options {
			options = append(options, PublicOption{ID: opt.ID, Value: opt.Value})
		}
		questions = append(questions, PublicQuestion{
			ID:      question.ID,
			Title:   question.Title,
			Marks:   question.Marks,
			Options: options,
		})
	}
	return PublicQuiz{
		Slug:         q.Slug,
		Title:        q.Title,
		Domain:       q.Domain,
		Guidelines:   q.Guidelines,
		LimitMinutes: q.LimitMinutes,
		Status:       q.Status,
		Questions:    questions,
	}
}

// PublicOption is an Option without its correctness flag.
type PublicOption struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// PublicQuestion is a Question as shown to students.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Marks   int            `json:"marks"`
	Options []PublicOption `json:"options"`
}

// PublicQuiz is a Quiz as shown to students.
type PublicQuiz struct {
	Slug         string           `json:"url"`
	Title        string           `json:"title"`
	Domain       string           `json:"domain"`
	Guidelines   string           `json:"guidelines"`
	LimitMinutes int              `json:"limit"`
	Status       QuizStatus       `json:"status"`
	Questions    []PublicQuestion `json:"questions"`
}

// QuizSummary is the author dashboard row for a quiz.
type QuizSummary struct {
	Slug           string     `json:"url"`
	Title          string     `json:"title"`
	Domain         string     `json:"domain"`
	LimitMinutes   int        `json:"limit"`
	Status         QuizStatus `json:"status"`
	TotalQuestions int        `json:"totalQuestions"`
	Responses      int        `json:"responses"`
}

// AttemptKey identifies one student's attempt at one quiz.
type AttemptKey struct {
	QuizSlug string
	UserID   string
}

// Attempt is the enforcement anchor for the time limit.
type Attempt struct {
	Key       AttemptKey
	StartedAt time.Time
}

// Deadline is the instant at which a submission is rejected.
func (a Attempt) Deadline(limit time.Duration) time.Time {
	return a.StartedAt.Add(limit)
}

// Response holds the student identity and, once submitted, the outcome.
type Response struct {
	QuizSlug    string     `json:"url"`
	UserID      string     `json:"userId"`
	StudentID   string     `json:"studentId"`
	Name        string     `json:"name"`
	Marks       *int       `json:"marks"`
	CompletedIn *int64     `json:"completedIn"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

// Scored reports whether a score has been recorded.
func (r Response) Scored() bool {
	return r.Marks != nil
}

// SubmittedAnswer is one answer as sent by the client. Correct and Marks are
// client-asserted and only honoured by trust-client scoring.
type SubmittedAnswer struct {
	QuestionID string `json:"quesId"`
	OptionID   string `json:"optionId"`
	Correct    bool   `json:"correct"`
	Marks      int    `json:"marks"`
}

// Result is the outcome of a successful submission.
type Result struct {
	Score       int   `json:"score"`
	Total       int   `json:"total"`
	CompletedIn int64 `json:"completedIn"`
}

// Score is what a successful submission writes onto the Response Record.
type Score struct {
	Marks       int
	CompletedIn int64
	SubmittedAt time.Time
}
