package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/grading"
)

// Attempt is a submitted quiz attempt.
type Attempt struct {
	ID             uuid.UUID              `json:"id"`
	QuizID         uuid.UUID              `json:"quiz_id"`
	UserID         string                 `json:"user_id"`
	Answers        map[int]attempt.Choice `json:"answers"`
	TotalQuestions int                    `json:"total_questions"`
	Trigger        attempt.Trigger        `json:"trigger"`
	Score          *int                   `json:"score,omitempty"`
	Percentage     *float64               `json:"percentage,omitempty"`
	IsGraded       bool                   `json:"is_graded"`
	SubmittedAt    time.Time              `json:"submitted_at"`
	GradedAt       *time.Time             `json:"graded_at,omitempty"`
}

// AttemptDetail is an attempt with its per-question grading, when a key exists.
type AttemptDetail struct {
	Attempt
	Result *grading.Result `json:"result,omitempty"`
}

// ScoreUpdate is queued on persist_scores_queue after an attempt is graded.
type ScoreUpdate struct {
	AttemptID  string  `json:"attempt_id"`
	Score      int     `json:"score"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// DraftOp enumerates autosave operations queued on persist_answers_queue.
type DraftOp string

const (
	DraftOpSet   DraftOp = "set"
	DraftOpClear DraftOp = "clear"
	DraftOpPurge DraftOp = "purge"
)

// DraftAnswer is an autosave event of an attempt in progress. Purge drops
// every draft of the (quiz, user) pair and ignores QuestionNumber.
type DraftAnswer struct {
	Op             DraftOp `json:"op"`
	QuizID         string  `json:"quiz_id"`
	UserID         string  `json:"user_id"`
	QuestionNumber int     `json:"question_number,omitempty"`
	Answer         string  `json:"answer,omitempty"`
}
