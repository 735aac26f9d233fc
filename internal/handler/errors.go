package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/response"
	"github.com/stemsi/paperquiz-backend/internal/service"
)

// failFromError maps a service error to its HTTP status and error code.
// Unknown errors are reported as internal errors.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQuizNotFound), errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotQuizOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.Is(err, service.ErrInvalidQuestions):
		response.FailWithDetail(c, http.StatusUnprocessableEntity, response.ErrInvalidQuestions, err.Error())
	case errors.Is(err, service.ErrInvalidAnswerKey), errors.Is(err, service.ErrAnswerKeyUnmatched):
		response.FailWithDetail(c, http.StatusUnprocessableEntity, response.ErrInvalidAnswerKey, err.Error())
	case errors.Is(err, service.ErrQuizNotReady):
		response.Fail(c, http.StatusConflict, response.ErrQuizNotReady)
	case errors.Is(err, service.ErrNoAnswerKey):
		response.Fail(c, http.StatusConflict, response.ErrNoAnswerKey)
	case errors.Is(err, service.ErrAttemptNotActive):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotActive)
	case errors.Is(err, service.ErrAttemptClosed):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
	case errors.Is(err, attempt.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// wsErrorMessage is the text sent in a WebSocket error event for err.
func wsErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrQuizNotFound):
		return "quiz not found"
	case errors.Is(err, service.ErrNoQuestions):
		return "quiz has no questions"
	case errors.Is(err, service.ErrAttemptClosed):
		return "attempt was closed"
	case errors.Is(err, attempt.ErrAlreadySubmitted):
		return "attempt already submitted"
	case errors.Is(err, attempt.ErrNotInProgress):
		return "attempt is not in progress"
	default:
		return "internal error"
	}
}
