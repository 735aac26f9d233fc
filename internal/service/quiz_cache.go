package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/config"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

// ErrCacheMiss is returned by a QuizCache when the entry is absent.
var ErrCacheMiss = errors.New("cache miss")

// QuizCache is the fast lane for quiz payloads and answer keys.
type QuizCache interface {
	GetPayload(ctx context.Context, quizID uuid.UUID) (*model.QuizPayload, error)
	GetAnswerKey(ctx context.Context, quizID uuid.UUID) (map[int]attempt.Choice, error)
	Store(ctx context.Context, payload *model.QuizPayload, key map[int]attempt.Choice) error
	Invalidate(ctx context.Context, quizID uuid.UUID) error
}

// RedisQuizCache stores the payload as a JSON string and the answer key as a
// hash of question number → option.
type RedisQuizCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisQuizCache creates a RedisQuizCache. A zero ttl keeps entries forever.
func NewRedisQuizCache(rdb *redis.Client, ttl time.Duration) *RedisQuizCache {
	return &RedisQuizCache{rdb: rdb, ttl: ttl}
}

// GetPayload returns the cached question set of a quiz.
func (c *RedisQuizCache) GetPayload(ctx context.Context, quizID uuid.UUID) (*model.QuizPayload, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.QuizPayloadKey(quizID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.QuizPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetAnswerKey returns the cached answer key of a quiz.
func (c *RedisQuizCache) GetAnswerKey(ctx context.Context, quizID uuid.UUID) (map[int]attempt.Choice, error) {
	result, err := c.rdb.HGetAll(ctx, config.CacheKey.QuizAnswerKey(quizID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	key := make(map[int]attempt.Choice, len(result))
	for field, value := range result {
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if choice, ok := attempt.ParseChoice(value); ok {
			key[n] = choice
		}
	}
	return key, nil
}

// Store caches payload and key in one pipeline, replacing any previous key.
func (c *RedisQuizCache) Store(ctx context.Context, payload *model.QuizPayload, key map[int]attempt.Choice) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	id := payload.QuizID.String()
	keyName := config.CacheKey.QuizAnswerKey(id)

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizPayloadKey(id), payloadJSON, c.ttl)
	pipe.Del(ctx, keyName)
	if len(key) > 0 {
		fields := make(map[string]any, len(key))
		for n, choice := range key {
			fields[strconv.Itoa(n)] = string(choice)
		}
		pipe.HSet(ctx, keyName, fields)
		if c.ttl > 0 {
			pipe.Expire(ctx, keyName, c.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	return nil
}

// Invalidate drops payload and key of a quiz.
func (c *RedisQuizCache) Invalidate(ctx context.Context, quizID uuid.UUID) error {
	id := quizID.String()
	return c.rdb.Del(ctx, config.CacheKey.QuizPayloadKey(id), config.CacheKey.QuizAnswerKey(id)).Err()
}
