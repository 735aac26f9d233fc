package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByQuiz retrieves all questions of a quiz ordered by question number,
// correct options included.
func (r *QuestionRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]attempt.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_number, question_text, options, correct_option
		 FROM questions WHERE quiz_id = $1
		 ORDER BY question_number`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []attempt.Question
	for rows.Next() {
		var (
			q       attempt.Question
			correct *string
		)
		if err := rows.Scan(&q.Number, &q.Text, &q.Options, &correct); err != nil {
			return nil, err
		}
		if correct != nil {
			if c, ok := attempt.ParseChoice(*correct); ok {
				q.CorrectOption = &c
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceAll deletes every question of the quiz and bulk-inserts the new set
// in one transaction. Later duplicates of a question number are dropped.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, quizID uuid.UUID, questions []attempt.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id = $1`, quizID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}

	seen := make(map[int]struct{}, len(questions))
	rows := make([][]any, 0, len(questions))
	for _, q := range questions {
		if _, dup := seen[q.Number]; dup {
			continue
		}
		seen[q.Number] = struct{}{}

		var correct *string
		if q.CorrectOption != nil {
			s := string(*q.CorrectOption)
			correct = &s
		}
		rows = append(rows, []any{quizID, q.Number, q.Text, q.Options, correct})
	}

	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"questions"},
		[]string{"quiz_id", "question_number", "question_text", "options", "correct_option"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}

	return tx.Commit(ctx)
}

// SetCorrectOptions replaces the answer key of the quiz's questions and
// returns how many questions matched a key entry. Questions absent from the
// key lose their previous option. A key matching nothing changes nothing.
func (r *QuestionRepository) SetCorrectOptions(ctx context.Context, quizID uuid.UUID, key map[int]attempt.Choice) (int, error) {
	numbers := make([]int, 0, len(key))
	options := make([]string, 0, len(key))
	for n, c := range key {
		numbers = append(numbers, n)
		options = append(options, string(c))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var matched int
	err = tx.QueryRow(ctx,
		`WITH updated AS (
		     UPDATE questions AS q
		     SET correct_option = (
		         SELECT k.option
		         FROM UNNEST($2::int[], $3::text[]) AS k (question_number, option)
		         WHERE k.question_number = q.question_number
		     )
		     WHERE q.quiz_id = $1
		     RETURNING q.correct_option
		 )
		 SELECT COUNT(*) FROM updated WHERE correct_option IS NOT NULL`,
		quizID, numbers, options,
	).Scan(&matched)
	if err != nil {
		return 0, fmt.Errorf("set correct options: %w", err)
	}
	if matched == 0 {
		return 0, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return matched, nil
}

// AnswerKey returns question number → correct option for every keyed question.
func (r *QuestionRepository) AnswerKey(ctx context.Context, quizID uuid.UUID) (map[int]attempt.Choice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_number, correct_option
		 FROM questions
		 WHERE quiz_id = $1 AND correct_option IS NOT NULL`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	key := make(map[int]attempt.Choice)
	for rows.Next() {
		var (
			number int
			option string
		)
		if err := rows.Scan(&number, &option); err != nil {
			return nil, err
		}
		if c, ok := attempt.ParseChoice(option); ok {
			key[number] = c
		}
	}
	return key, rows.Err()
}
