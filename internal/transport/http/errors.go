package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"quizzr-service/internal/domain"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrQuizInactive):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAttemptNotStarted), errors.Is(err, domain.ErrAlreadySubmitted), errors.Is(err, domain.ErrSlugTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimeLimitExceeded), errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// messageFor hides internal details of storage faults from clients.
func messageFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeLimitExceeded):
		return "Time limit exceeded"
	case statusFor(err) == http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Success: false, Message: messageFor(err)})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Success: false, Message: message})
}
