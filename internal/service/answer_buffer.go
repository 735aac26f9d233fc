package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/config"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

// AnswerBuffer is the autosave store of attempts in progress.
type AnswerBuffer interface {
	// Save records an answer change; an empty choice clears the answer.
	Save(ctx context.Context, userID, quizID string, number int, choice attempt.Choice) error
	// Restore returns autosaved answers and the start time, zero when unknown.
	Restore(ctx context.Context, userID, quizID string) (map[int]attempt.Choice, time.Time, error)
	// MarkStarted records the start time unless one is already stored.
	MarkStarted(ctx context.Context, userID, quizID string, at time.Time) error
	// Discard drops everything buffered for the attempt.
	Discard(ctx context.Context, userID, quizID string) error
}

// RedisAnswerBuffer keeps answers in a Redis hash and queues every change on
// persist_answers_queue for the autosave worker.
type RedisAnswerBuffer struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisAnswerBuffer creates a RedisAnswerBuffer. Keys expire after ttl of
// inactivity; zero keeps them forever.
func NewRedisAnswerBuffer(rdb *redis.Client, ttl time.Duration) *RedisAnswerBuffer {
	return &RedisAnswerBuffer{rdb: rdb, ttl: ttl}
}

// Save implements AnswerBuffer.
func (b *RedisAnswerBuffer) Save(ctx context.Context, userID, quizID string, number int, choice attempt.Choice) error {
	key := config.CacheKey.AttemptAnswersKey(userID, quizID)
	field := strconv.Itoa(number)

	draft := model.DraftAnswer{
		Op:             model.DraftOpSet,
		QuizID:         quizID,
		UserID:         userID,
		QuestionNumber: number,
		Answer:         string(choice),
	}
	if choice == "" {
		draft.Op = model.DraftOpClear
	}
	raw, err := json.Marshal(draft)
	if err != nil {
		return err
	}

	pipe := b.rdb.TxPipeline()
	if choice == "" {
		pipe.HDel(ctx, key, field)
	} else {
		pipe.HSet(ctx, key, field, string(choice))
	}
	if b.ttl > 0 {
		pipe.Expire(ctx, key, b.ttl)
	}
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	return nil
}

// Restore implements AnswerBuffer.
func (b *RedisAnswerBuffer) Restore(ctx context.Context, userID, quizID string) (map[int]attempt.Choice, time.Time, error) {
	pipe := b.rdb.Pipeline()
	answersCmd := pipe.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(userID, quizID))
	startCmd := pipe.Get(ctx, config.CacheKey.AttemptStartKey(userID, quizID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, time.Time{}, fmt.Errorf("restore attempt: %w", err)
	}

	answers := make(map[int]attempt.Choice)
	for field, value := range answersCmd.Val() {
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if c, ok := attempt.ParseChoice(value); ok {
			answers[n] = c
		}
	}

	var started time.Time
	if unix, err := startCmd.Int64(); err == nil {
		started = time.Unix(unix, 0)
	}
	return answers, started, nil
}

// MarkStarted implements AnswerBuffer.
func (b *RedisAnswerBuffer) MarkStarted(ctx context.Context, userID, quizID string, at time.Time) error {
	return b.rdb.SetNX(ctx, config.CacheKey.AttemptStartKey(userID, quizID), at.Unix(), b.ttl).Err()
}

// Discard implements AnswerBuffer. The autosave worker is told to purge the
// persisted drafts as well.
func (b *RedisAnswerBuffer) Discard(ctx context.Context, userID, quizID string) error {
	raw, err := json.Marshal(model.DraftAnswer{Op: model.DraftOpPurge, QuizID: quizID, UserID: userID})
	if err != nil {
		return err
	}

	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx,
		config.CacheKey.AttemptAnswersKey(userID, quizID),
		config.CacheKey.AttemptStartKey(userID, quizID),
	)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("discard autosave: %w", err)
	}
	return nil
}
