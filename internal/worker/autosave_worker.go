package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/config"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

const autosaveRetryDelay = 5 * time.Second

// errMalformedDraft marks queue items that can never be persisted.
var errMalformedDraft = errors.New("malformed draft answer")

// DraftWriter persists autosaved answers of attempts in progress.
type DraftWriter interface {
	Upsert(ctx context.Context, quizID uuid.UUID, userID string, number int, answer attempt.Choice) error
	Delete(ctx context.Context, quizID uuid.UUID, userID string, number int) error
	Purge(ctx context.Context, quizID uuid.UUID, userID string) error
}

// AutosaveWorker consumes persist_answers_queue and mirrors drafts into PostgreSQL.
type AutosaveWorker struct {
	drafts DraftWriter
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(drafts DraftWriter, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		drafts: drafts,
		rdb:    rdb,
		log:    log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.handle(ctx, result[1]); err != nil {
		w.log.Error().Err(err).Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(autosaveRetryDelay):
		}
	}
}

// handle applies one queue item. Malformed items are logged and dropped;
// only store errors are returned for a retry.
func (w *AutosaveWorker) handle(ctx context.Context, raw string) error {
	var draft model.DraftAnswer
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return nil
	}

	err := w.apply(ctx, &draft)
	if errors.Is(err, errMalformedDraft) {
		w.log.Warn().Err(err).
			Str("quiz_id", draft.QuizID).
			Str("user_id", draft.UserID).
			Msg("Dropping draft")
		return nil
	}
	return err
}

func (w *AutosaveWorker) apply(ctx context.Context, d *model.DraftAnswer) error {
	quizID, err := uuid.Parse(d.QuizID)
	if err != nil || d.UserID == "" {
		return fmt.Errorf("%w: quiz %q user %q", errMalformedDraft, d.QuizID, d.UserID)
	}

	switch d.Op {
	case model.DraftOpSet:
		choice, ok := attempt.ParseChoice(d.Answer)
		if !ok || d.QuestionNumber <= 0 {
			return fmt.Errorf("%w: question %d answer %q", errMalformedDraft, d.QuestionNumber, d.Answer)
		}
		return w.drafts.Upsert(ctx, quizID, d.UserID, d.QuestionNumber, choice)
	case model.DraftOpClear:
		return w.drafts.Delete(ctx, quizID, d.UserID, d.QuestionNumber)
	case model.DraftOpPurge:
		return w.drafts.Purge(ctx, quizID, d.UserID)
	default:
		return fmt.Errorf("%w: unknown op %q", errMalformedDraft, d.Op)
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		if err := w.handle(ctx, result); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
