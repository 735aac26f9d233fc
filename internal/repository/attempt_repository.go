package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

// AttemptRepository handles submitted-attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, quiz_id, user_id, answers, total_questions, submit_trigger,
	score, percentage, is_graded, submitted_at, graded_at`

func scanAttempt(row rowScanner, a *model.Attempt) error {
	return row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Answers, &a.TotalQuestions, &a.Trigger,
		&a.Score, &a.Percentage, &a.IsGraded, &a.SubmittedAt, &a.GradedAt)
}

// Create inserts a submitted attempt and fills in its ID and submission time.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (quiz_id, user_id, answers, total_questions, submit_trigger)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, submitted_at`,
		a.QuizID, a.UserID, a.Answers, a.TotalQuestions, string(a.Trigger),
	).Scan(&a.ID, &a.SubmittedAt)
}

// GetByID retrieves an attempt by ID. Returns pgx.ErrNoRows when absent.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	row := r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	if err := scanAttempt(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByQuiz retrieves every attempt of a quiz, newest first.
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	return r.list(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id = $1 ORDER BY submitted_at DESC`,
		quizID)
}

// ListUngraded retrieves the attempts of a quiz that have no score yet.
func (r *AttemptRepository) ListUngraded(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	return r.list(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id = $1 AND NOT is_graded ORDER BY submitted_at`,
		quizID)
}

func (r *AttemptRepository) list(ctx context.Context, query string, args ...any) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []model.Attempt{}
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// UpdateScores records the grading of many attempts in one statement.
func (r *AttemptRepository) UpdateScores(ctx context.Context, updates []model.ScoreUpdate) error {
	n := len(updates)
	ids := make([]uuid.UUID, 0, n)
	scores := make([]int, 0, n)
	percentages := make([]float64, 0, n)

	for _, u := range updates {
		id, err := uuid.Parse(u.AttemptID)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		scores = append(scores, u.Score)
		percentages = append(percentages, u.Percentage)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE attempts AS a
		SET score = t.score,
		    percentage = t.percentage,
		    is_graded = TRUE,
		    graded_at = NOW()
		FROM UNNEST($1::uuid[], $2::int[], $3::float8[]) AS t (id, score, percentage)
		WHERE a.id = t.id`,
		ids, scores, percentages,
	)
	return err
}

// UpdateScore records the grading of a single attempt.
func (r *AttemptRepository) UpdateScore(ctx context.Context, u model.ScoreUpdate) error {
	id, err := uuid.Parse(u.AttemptID)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE attempts
		 SET score = $1, percentage = $2, is_graded = TRUE, graded_at = NOW()
		 WHERE id = $3`,
		u.Score, u.Percentage, id,
	)
	return err
}
