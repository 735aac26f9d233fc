package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/paperquiz-backend/internal/attempt"
)

// QuizStatus enumerates the lifecycle of a quiz.
type QuizStatus string

const (
	// QuizStatusProcessing means the question paper is still being parsed.
	QuizStatusProcessing QuizStatus = "PROCESSING"
	// QuizStatusReview means questions are in place but no answer key is known.
	QuizStatusReview QuizStatus = "REVIEW"
	// QuizStatusReady means questions and answer key are both in place.
	QuizStatusReady QuizStatus = "READY"
)

// Quiz represents a question paper turned into a timed quiz.
type Quiz struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Title         string     `json:"title"`
	SourceFile    string     `json:"source_file,omitempty"`
	TimerMinutes  int        `json:"timer_minutes"`
	Status        QuizStatus `json:"status"`
	QuestionCount int        `json:"question_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Takeable reports whether an attempt may be started on the quiz.
func (q *Quiz) Takeable() bool {
	return q.Status == QuizStatusReview || q.Status == QuizStatusReady
}

// CreateQuizRequest is the payload for creating a new quiz.
type CreateQuizRequest struct {
	Title        string `json:"title" binding:"required,min=1,max=255"`
	TimerMinutes int    `json:"timer_minutes" binding:"omitempty,min=1,max=600"`
	SourceFile   string `json:"source_file" binding:"omitempty,max=255"`
}

// QuizPayload is the Redis-cached question set of a quiz. Correct options
// are never part of it.
type QuizPayload struct {
	QuizID       uuid.UUID          `json:"quiz_id"`
	Title        string             `json:"title"`
	TimerMinutes int                `json:"timer_minutes"`
	Questions    []attempt.Question `json:"questions"`
}

// QuizDetail is a quiz together with its questions, as shown to its owner.
type QuizDetail struct {
	Quiz
	Questions []attempt.Question `json:"questions"`
}
