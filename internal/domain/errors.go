package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a bearer credential is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller does not own the quiz.
	ErrForbidden = errors.New("forbidden")
	// ErrQuizNotFound indicates the slug does not reference a quiz.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizInactive is returned when a student tries to start an inactive quiz.
	ErrQuizInactive = errors.New("quiz is not active")
	// ErrInvalidQuiz wraps validation failures of a quiz definition.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrSlugTaken is returned when creating a quiz under an existing slug.
	ErrSlugTaken = errors.New("quiz slug already exists")
	// ErrAttemptNotStarted is returned when submitting without a prior start.
	ErrAttemptNotStarted = errors.New("attempt not started")
	// ErrTimeLimitExceeded is the expected outcome of a late submission.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	// ErrAlreadySubmitted is returned when a score is already recorded.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrStorage matches any StorageError.
	ErrStorage = errors.New("storage error")
)

// StorageError wraps a persistence fault.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError; nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
