package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
)

// DraftAnswerRepository reads the autosaved answers that the autosave worker
// persisted for attempts still in progress.
type DraftAnswerRepository struct {
	pool *pgxpool.Pool
}

// NewDraftAnswerRepository creates a new DraftAnswerRepository.
func NewDraftAnswerRepository(pool *pgxpool.Pool) *DraftAnswerRepository {
	return &DraftAnswerRepository{pool: pool}
}

// ListByAttempt returns the drafts of a (quiz, user) pair.
func (r *DraftAnswerRepository) ListByAttempt(ctx context.Context, quizID uuid.UUID, userID string) (map[int]attempt.Choice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_number, answer
		 FROM draft_answers
		 WHERE quiz_id = $1 AND user_id = $2`, quizID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[int]attempt.Choice)
	for rows.Next() {
		var (
			number int
			answer string
		)
		if err := rows.Scan(&number, &answer); err != nil {
			return nil, err
		}
		if c, ok := attempt.ParseChoice(answer); ok {
			answers[number] = c
		}
	}
	return answers, rows.Err()
}

// Upsert stores the latest draft answer of one question.
func (r *DraftAnswerRepository) Upsert(ctx context.Context, quizID uuid.UUID, userID string, number int, answer attempt.Choice) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO draft_answers (quiz_id, user_id, question_number, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (quiz_id, user_id, question_number) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		quizID, userID, number, string(answer),
	)
	return err
}

// Delete removes the draft answer of one question.
func (r *DraftAnswerRepository) Delete(ctx context.Context, quizID uuid.UUID, userID string, number int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM draft_answers
		 WHERE quiz_id = $1 AND user_id = $2 AND question_number = $3`,
		quizID, userID, number,
	)
	return err
}

// Purge removes every draft of a (quiz, user) pair once the attempt is submitted.
func (r *DraftAnswerRepository) Purge(ctx context.Context, quizID uuid.UUID, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM draft_answers WHERE quiz_id = $1 AND user_id = $2`,
		quizID, userID,
	)
	return err
}
