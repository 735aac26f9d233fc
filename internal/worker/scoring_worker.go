package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/paperquiz-backend/internal/config"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

// ScoreWriter persists attempt scores.
type ScoreWriter interface {
	UpdateScores(ctx context.Context, updates []model.ScoreUpdate) error
	UpdateScore(ctx context.Context, update model.ScoreUpdate) error
}

// ScoringWorker consumes persist_scores_queue and writes scores in batches.
type ScoringWorker struct {
	scores ScoreWriter
	rdb    *redis.Client
	log    zerolog.Logger
}

func NewScoringWorker(scores ScoreWriter, rdb *redis.Client, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		scores: scores,
		rdb:    rdb,
		log:    log.With().Str("component", "scoring_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	batch := make([]model.ScoreUpdate, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.PersistScoresQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var u model.ScoreUpdate
			if err := json.Unmarshal([]byte(item[1]), &u); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, u)
		}
	}
}

// ----------------------------------------------------------------
// Batch update with per-row fallback
// ----------------------------------------------------------------

func (w *ScoringWorker) flushSafe(ctx context.Context, batch []model.ScoreUpdate) {
	failed := w.flush(ctx, batch)
	if len(failed) == 0 {
		return
	}

	pipe := w.rdb.Pipeline()
	for _, u := range failed {
		raw, _ := json.Marshal(u)
		pipe.RPush(ctx, config.WorkerKey.PersistScoresQueue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(failed)).Msg("Requeueing scores failed")
	}
}

// flush writes batch and returns the updates that could not be written.
func (w *ScoringWorker) flush(ctx context.Context, batch []model.ScoreUpdate) []model.ScoreUpdate {
	if len(batch) == 0 {
		return nil
	}

	err := w.scores.UpdateScores(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Scores persisted")
		return nil
	}

	w.log.Warn().Err(err).Msg("bulk score update failed, using fallback")

	var failed []model.ScoreUpdate
	for _, u := range batch {
		if err := w.scores.UpdateScore(ctx, u); err != nil {
			w.log.Error().Err(err).Str("attempt_id", u.AttemptID).Msg("UpdateScore failed, requeueing")
			failed = append(failed, u)
		}
	}
	return failed
}
