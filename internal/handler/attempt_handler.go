package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/grading"
	"github.com/stemsi/paperquiz-backend/internal/middleware"
	"github.com/stemsi/paperquiz-backend/internal/model"
	"github.com/stemsi/paperquiz-backend/internal/response"
	"github.com/stemsi/paperquiz-backend/internal/service"
)

// AttemptReader reads live and submitted attempts.
type AttemptReader interface {
	Snapshot(userID string, quizID uuid.UUID) (attempt.Snapshot, error)
	Get(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error)
}

// AttemptScorer grades submitted attempts.
type AttemptScorer interface {
	GradeAttempt(ctx context.Context, attemptID uuid.UUID) (*grading.Result, error)
	Preview(ctx context.Context, a *model.Attempt) (*grading.Result, error)
}

// AttemptHandler handles attempt endpoints.
type AttemptHandler struct {
	attempts AttemptReader
	scorer   AttemptScorer
	quizzes  QuizManager
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts AttemptReader, scorer AttemptScorer, quizzes QuizManager) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		scorer:   scorer,
		quizzes:  quizzes,
	}
}

// LiveSnapshot godoc
// GET /api/v1/quizzes/:quiz_id/attempt
// Returns the presentation state of the caller's live attempt on a quiz.
func (h *AttemptHandler) LiveSnapshot(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	snap, err := h.attempts.Snapshot(claims.UserID(), quizID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": snap})
}

// GetAttempt godoc
// GET /api/v1/attempts/:attempt_id
// Returns a submitted attempt with its grading. Visible to the attempt's user
// and the quiz owner.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	a, ok := h.authorizedAttempt(c, claims.UserID(), false)
	if !ok {
		return
	}

	result, err := h.scorer.Preview(c.Request.Context(), a)
	if err != nil && !errors.Is(err, service.ErrNoAnswerKey) {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": model.AttemptDetail{Attempt: *a, Result: result}})
}

// GradeAttempt godoc
// POST /api/v1/attempts/:attempt_id/grade
// Re-grades a submitted attempt against the current answer key. Quiz owner only.
func (h *AttemptHandler) GradeAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	a, ok := h.authorizedAttempt(c, claims.UserID(), true)
	if !ok {
		return
	}

	result, err := h.scorer.GradeAttempt(c.Request.Context(), a.ID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// authorizedAttempt loads the attempt named in the path and checks that
// userID may see it. ownerOnly restricts access to the quiz owner.
func (h *AttemptHandler) authorizedAttempt(c *gin.Context, userID string, ownerOnly bool) (*model.Attempt, bool) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	a, err := h.attempts.Get(c.Request.Context(), attemptID)
	if err != nil {
		failFromError(c, err)
		return nil, false
	}

	if !ownerOnly && a.UserID == userID {
		return a, true
	}

	if _, err := h.quizzes.GetOwned(c.Request.Context(), a.QuizID, userID); err != nil {
		if errors.Is(err, service.ErrNotQuizOwner) {
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
			return nil, false
		}
		failFromError(c, err)
		return nil, false
	}
	return a, true
}
