package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

// QuizRepository handles quiz data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

const quizColumns = `q.id, q.owner_id, q.title, q.source_file, q.timer_minutes, q.status,
	(SELECT COUNT(*) FROM questions qs WHERE qs.quiz_id = q.id) AS question_count,
	q.created_at, q.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row rowScanner, q *model.Quiz) error {
	return row.Scan(&q.ID, &q.OwnerID, &q.Title, &q.SourceFile, &q.TimerMinutes, &q.Status,
		&q.QuestionCount, &q.CreatedAt, &q.UpdatedAt)
}

// Create inserts a new quiz in the PROCESSING state.
func (r *QuizRepository) Create(ctx context.Context, q *model.Quiz) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (owner_id, title, source_file, timer_minutes, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, status, created_at, updated_at`,
		q.OwnerID, q.Title, q.SourceFile, q.TimerMinutes, model.QuizStatusProcessing,
	).Scan(&q.ID, &q.Status, &q.CreatedAt, &q.UpdatedAt)
}

// GetByID retrieves a quiz by ID. Returns pgx.ErrNoRows when absent.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	row := r.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes q WHERE q.id = $1`, id)
	if err := scanQuiz(row, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ListByOwner retrieves one page of the owner's quizzes, newest first, and
// the total number of quizzes the owner has.
func (r *QuizRepository) ListByOwner(ctx context.Context, ownerID string, page, perPage int) ([]model.Quiz, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quizzes WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+`
		 FROM quizzes q
		 WHERE q.owner_id = $1
		 ORDER BY q.created_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	quizzes := make([]model.Quiz, 0, perPage)
	for rows.Next() {
		var q model.Quiz
		if err := scanQuiz(rows, &q); err != nil {
			return nil, 0, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, total, rows.Err()
}

// ListTakeable retrieves every quiz that attempts may be started on.
func (r *QuizRepository) ListTakeable(ctx context.Context) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+`
		 FROM quizzes q
		 WHERE q.status IN ($1, $2)
		 ORDER BY q.updated_at DESC`,
		model.QuizStatusReview, model.QuizStatusReady,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		var q model.Quiz
		if err := scanQuiz(rows, &q); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// UpdateStatus moves a quiz to a new lifecycle status.
func (r *QuizRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.QuizStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}
