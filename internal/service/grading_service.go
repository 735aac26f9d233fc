package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/config"
	"github.com/stemsi/paperquiz-backend/internal/grading"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

// Grading errors.
var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrNoAnswerKey     = errors.New("no answer key available for this quiz")
)

// AttemptStore is the submitted-attempt persistence.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error)
	ListUngraded(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error)
}

// ScoreQueue hands computed scores to the scoring worker.
type ScoreQueue interface {
	EnqueueScore(ctx context.Context, update model.ScoreUpdate) error
}

// RedisScoreQueue pushes score updates onto persist_scores_queue.
type RedisScoreQueue struct {
	rdb *redis.Client
}

// NewRedisScoreQueue creates a RedisScoreQueue.
func NewRedisScoreQueue(rdb *redis.Client) *RedisScoreQueue {
	return &RedisScoreQueue{rdb: rdb}
}

// EnqueueScore implements ScoreQueue.
func (q *RedisScoreQueue) EnqueueScore(ctx context.Context, update model.ScoreUpdate) error {
	raw, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, raw).Err()
}

// GradingService grades submitted attempts against the quiz answer key.
type GradingService struct {
	attempts  AttemptStore
	questions QuestionStore
	cache     QuizCache
	scores    ScoreQueue
	log       zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(
	attempts AttemptStore,
	questions QuestionStore,
	cache QuizCache,
	scores ScoreQueue,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		attempts:  attempts,
		questions: questions,
		cache:     cache,
		scores:    scores,
		log:       log.With().Str("component", "grading_service").Logger(),
	}
}

// AnswerKey returns the answer key of a quiz from the cache, falling back to
// PostgreSQL. The result is empty when no key has been applied.
func (s *GradingService) AnswerKey(ctx context.Context, quizID uuid.UUID) (map[int]attempt.Choice, error) {
	key, err := s.cache.GetAnswerKey(ctx, quizID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Answer key cache read failed, using database")
	}

	key, err = s.questions.AnswerKey(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	return key, nil
}

// GradeAttempt grades one attempt, queues its score for persistence and
// returns the per-question result.
func (s *GradingService) GradeAttempt(ctx context.Context, attemptID uuid.UUID) (*grading.Result, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	key, err := s.AnswerKey(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrNoAnswerKey
	}

	return s.grade(ctx, a, key)
}

// GradeQuiz grades every ungraded attempt of a quiz and returns how many
// scores were queued.
func (s *GradingService) GradeQuiz(ctx context.Context, quizID uuid.UUID) (int, error) {
	key, err := s.AnswerKey(ctx, quizID)
	if err != nil {
		return 0, err
	}
	if len(key) == 0 {
		return 0, ErrNoAnswerKey
	}

	pending, err := s.attempts.ListUngraded(ctx, quizID)
	if err != nil {
		return 0, fmt.Errorf("list ungraded attempts: %w", err)
	}

	graded := 0
	for i := range pending {
		if _, err := s.grade(ctx, &pending[i], key); err != nil {
			s.log.Error().Err(err).Str("attempt_id", pending[i].ID.String()).Msg("Grading attempt failed")
			continue
		}
		graded++
	}
	return graded, nil
}

// Preview grades an attempt without queueing anything. It returns nil when
// the quiz has no answer key.
func (s *GradingService) Preview(ctx context.Context, a *model.Attempt) (*grading.Result, error) {
	key, err := s.AnswerKey(ctx, a.QuizID)
	if err != nil || len(key) == 0 {
		return nil, err
	}
	res := grading.Grade(a.Answers, key)
	return &res, nil
}

func (s *GradingService) grade(ctx context.Context, a *model.Attempt, key map[int]attempt.Choice) (*grading.Result, error) {
	res := grading.Grade(a.Answers, key)

	update := model.ScoreUpdate{
		AttemptID:  a.ID.String(),
		Score:      res.Score,
		Total:      res.Total,
		Percentage: res.Percentage,
	}
	if err := s.scores.EnqueueScore(ctx, update); err != nil {
		return nil, fmt.Errorf("enqueue score: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("score", res.Score).
		Int("total", res.Total).
		Float64("percentage", res.Percentage).
		Msg("Attempt graded")
	return &res, nil
}
