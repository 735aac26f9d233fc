package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/middleware"
	"github.com/stemsi/paperquiz-backend/internal/model"
	"github.com/stemsi/paperquiz-backend/internal/response"
	"github.com/stemsi/paperquiz-backend/internal/validator"
)

// QuizManager is the quiz behaviour exposed over HTTP.
type QuizManager interface {
	Create(ctx context.Context, ownerID string, req *model.CreateQuizRequest) (*model.Quiz, error)
	List(ctx context.Context, ownerID string, page, perPage int) ([]model.Quiz, *response.Pagination, error)
	GetOwned(ctx context.Context, quizID uuid.UUID, ownerID string) (*model.Quiz, error)
	Detail(ctx context.Context, quizID uuid.UUID, userID string) (*model.QuizDetail, error)
	IngestQuestions(ctx context.Context, quizID uuid.UUID, ownerID string, questions []attempt.Question) (*model.Quiz, error)
	IngestRaw(ctx context.Context, quizID uuid.UUID, ownerID string, raw string) (*model.Quiz, error)
	ApplyAnswerKey(ctx context.Context, quizID uuid.UUID, ownerID string, raw string) (*model.AnswerKeyResult, error)
}

// QuizHandler handles quiz management endpoints.
type QuizHandler struct {
	quizzes        QuizManager
	attempts       AttemptReader
	maxIngestBytes int64
}

// NewQuizHandler creates a new QuizHandler. Ingest and answer-key bodies
// larger than maxIngestBytes are rejected.
func NewQuizHandler(quizzes QuizManager, attempts AttemptReader, maxIngestBytes int64) *QuizHandler {
	return &QuizHandler{
		quizzes:        quizzes,
		attempts:       attempts,
		maxIngestBytes: maxIngestBytes,
	}
}

// CreateQuiz godoc
// POST /api/v1/quizzes
// Creates an empty quiz owned by the caller. Questions arrive later from the paper parser.
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz, err := h.quizzes.Create(c.Request.Context(), claims.UserID(), &req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"quiz": quiz})
}

// ListQuizzes godoc
// GET /api/v1/quizzes
// Lists the caller's quizzes with pagination.
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	quizzes, pagination, err := h.quizzes.List(c.Request.Context(), claims.UserID(), page, perPage)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"quizzes": quizzes}, pagination)
}

// GetQuiz godoc
// GET /api/v1/quizzes/:quiz_id
// Returns a quiz with its questions. Correct options are only shown to the owner.
func (h *QuizHandler) GetQuiz(c *gin.Context) {
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

	detail, err := h.quizzes.Detail(c.Request.Context(), quizID, claims.UserID())
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": detail})
}

// IngestQuestions godoc
// PUT /api/v1/quizzes/:quiz_id/questions
// Replaces every question of a quiz with structured or raw parser output.
func (h *QuizHandler) IngestQuestions(c *gin.Context) {
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

	var req model.IngestQuestionsRequest
	if !h.bindLimited(c, &req) {
		return
	}
	if len(req.Questions) == 0 && req.Raw == "" {
		response.FailWithDetail(c, http.StatusBadRequest, response.ErrValidation, "questions or raw is required")
		return
	}

	var quiz *model.Quiz
	if len(req.Questions) > 0 {
		quiz, err = h.quizzes.IngestQuestions(c.Request.Context(), quizID, claims.UserID(), req.ToQuestions())
	} else {
		quiz, err = h.quizzes.IngestRaw(c.Request.Context(), quizID, claims.UserID(), req.Raw)
	}
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// ApplyAnswerKey godoc
// POST /api/v1/quizzes/:quiz_id/answer-key
// Applies an answer key given as a map or as raw text, then grades pending attempts.
func (h *QuizHandler) ApplyAnswerKey(c *gin.Context) {
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

	var req model.AnswerKeyRequest
	if !h.bindLimited(c, &req) {
		return
	}
	raw := req.AnswerKeyRaw()
	if raw == "" {
		response.FailWithDetail(c, http.StatusBadRequest, response.ErrValidation, "key or text is required")
		return
	}

	result, err := h.quizzes.ApplyAnswerKey(c.Request.Context(), quizID, claims.UserID(), raw)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer_key": result})
}

// ListAttempts godoc
// GET /api/v1/quizzes/:quiz_id/attempts
// Lists submitted attempts of a quiz. Owner only.
func (h *QuizHandler) ListAttempts(c *gin.Context) {
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

	if _, err := h.quizzes.GetOwned(c.Request.Context(), quizID, claims.UserID()); err != nil {
		failFromError(c, err)
		return
	}

	attempts, err := h.attempts.ListByQuiz(c.Request.Context(), quizID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// bindLimited binds a JSON body of at most maxIngestBytes. It writes the
// error response and returns false on failure.
func (h *QuizHandler) bindLimited(c *gin.Context, dst any) bool {
	if h.maxIngestBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxIngestBytes)
	}

	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrPayloadTooLarge)
			return false
		}
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return false
	}
	return true
}
