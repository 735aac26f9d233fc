package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/grading"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

// Attempt lifecycle errors.
var (
	ErrAttemptNotActive = errors.New("no active attempt for this quiz")
	ErrAttemptClosed    = errors.New("attempt was closed before it started")
)

const hookTimeout = 5 * time.Second

// IdentityProvider opens the auth session an attempt is bound to.
type IdentityProvider interface {
	OpenSession(ctx context.Context, userID string) (IdentitySession, error)
}

// AttemptGrader grades a freshly submitted attempt.
type AttemptGrader interface {
	GradeAttempt(ctx context.Context, attemptID uuid.UUID) (*grading.Result, error)
}

// DraftStore reads the drafts the autosave worker persisted.
type DraftStore interface {
	ListByAttempt(ctx context.Context, quizID uuid.UUID, userID string) (map[int]attempt.Choice, error)
}

// AttemptEventType enumerates events pushed to attempt listeners.
type AttemptEventType string

const (
	AttemptEventTick      AttemptEventType = "tick"
	AttemptEventSubmitted AttemptEventType = "submitted"
	AttemptEventClosed    AttemptEventType = "closed"
)

// AttemptEvent is pushed to listeners of a live attempt.
type AttemptEvent struct {
	Type      AttemptEventType
	Remaining int
	Result    *attempt.Result
}

// AttemptServiceOption configures an AttemptService.
type AttemptServiceOption func(*AttemptService)

// WithAttemptTicker replaces the one-second ticker of every controller.
func WithAttemptTicker(fn func(time.Duration) attempt.Ticker) AttemptServiceOption {
	return func(s *AttemptService) { s.newTicker = fn }
}

// WithClock replaces the wall clock used for start times.
func WithClock(now func() time.Time) AttemptServiceOption {
	return func(s *AttemptService) { s.now = now }
}

// AttemptService keeps at most one live attempt controller per (user, quiz)
// and is the persistence sink of every controller it creates.
type AttemptService struct {
	loader     attempt.Loader
	attempts   AttemptStore
	buffer     AnswerBuffer
	drafts     DraftStore
	identities IdentityProvider
	grader     AttemptGrader

	submitTimeout time.Duration
	newTicker     func(time.Duration) attempt.Ticker
	now           func() time.Time
	log           zerolog.Logger

	mu   sync.Mutex
	live map[string]*liveAttempt
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	loader attempt.Loader,
	attempts AttemptStore,
	buffer AnswerBuffer,
	drafts DraftStore,
	identities IdentityProvider,
	grader AttemptGrader,
	submitTimeout time.Duration,
	log zerolog.Logger,
	opts ...AttemptServiceOption,
) *AttemptService {
	s := &AttemptService{
		loader:        loader,
		attempts:      attempts,
		buffer:        buffer,
		drafts:        drafts,
		identities:    identities,
		grader:        grader,
		submitTimeout: submitTimeout,
		newTicker:     attempt.NewRealTicker,
		now:           time.Now,
		log:           log.With().Str("component", "attempt_service").Logger(),
		live:          make(map[string]*liveAttempt),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func liveKey(userID string, quizID uuid.UUID) string {
	return userID + "|" + quizID.String()
}

// Open returns the live attempt of userID on quizID, starting or resuming
// one when none is live. A resumed attempt whose time ran out is submitted
// during Open and returned in the Submitted state.
func (s *AttemptService) Open(ctx context.Context, userID string, quizID uuid.UUID) (*attempt.Controller, error) {
	key := liveKey(userID, quizID)
	if la := s.lookup(key); la != nil {
		return la.ctrl, nil
	}

	identity, err := s.identities.OpenSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open auth session: %w", err)
	}

	qid := quizID.String()
	answers, startedAt, err := s.buffer.Restore(ctx, userID, qid)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("quiz_id", qid).Msg("Restoring autosave failed")
	}
	// An empty hash with a start time means every answer was cleared; only
	// a lost Redis state falls back to the persisted drafts.
	if len(answers) == 0 && startedAt.IsZero() && s.drafts != nil {
		if drafts, err := s.drafts.ListByAttempt(ctx, quizID, userID); err == nil {
			answers = drafts
		} else {
			s.log.Warn().Err(err).Str("user_id", userID).Str("quiz_id", qid).Msg("Loading drafts failed")
		}
	}

	now := s.now()
	fresh := startedAt.IsZero()
	if fresh {
		startedAt = now
	}
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	la := &liveAttempt{identity: identity, listeners: make(map[int]chan AttemptEvent)}
	ctrl := attempt.New(qid, identity, s,
		attempt.WithLogger(s.log.With().Str("user_id", userID).Str("quiz_id", qid).Logger()),
		attempt.WithHooks(s.hooks(key, la, userID, qid)),
		attempt.WithResume(answers, elapsed),
		attempt.WithSubmitTimeout(s.submitTimeout),
		attempt.WithTicker(s.newTicker),
	)
	la.ctrl = ctrl

	if err := ctrl.Load(ctx, s.loader); err != nil {
		_ = identity.Close()
		return nil, err
	}

	switch ctrl.State() {
	case attempt.StateNoQuestions:
		_ = identity.Close()
		return nil, ErrNoQuestions
	case attempt.StateClosed:
		return nil, ErrAttemptClosed
	case attempt.StateSubmitted:
		return ctrl, nil
	}

	// Only a started countdown is recorded, so a failed open does not eat
	// into the next one.
	if fresh {
		if err := s.buffer.MarkStarted(ctx, userID, qid, now); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Str("quiz_id", qid).Msg("Recording start time failed")
		}
	}

	s.mu.Lock()
	if existing, ok := s.live[key]; ok {
		s.mu.Unlock()
		ctrl.Close()
		return existing.ctrl, nil
	}
	s.live[key] = la
	s.mu.Unlock()

	return ctrl, nil
}

// Live returns the live controller of userID on quizID.
func (s *AttemptService) Live(userID string, quizID uuid.UUID) (*attempt.Controller, error) {
	la := s.lookup(liveKey(userID, quizID))
	if la == nil {
		return nil, ErrAttemptNotActive
	}
	return la.ctrl, nil
}

// Snapshot returns the presentation state of a live attempt.
func (s *AttemptService) Snapshot(userID string, quizID uuid.UUID) (attempt.Snapshot, error) {
	ctrl, err := s.Live(userID, quizID)
	if err != nil {
		return attempt.Snapshot{}, err
	}
	return ctrl.Snapshot(), nil
}

// Listen registers for tick, submitted and closed events of a live attempt.
// The channel is closed when the attempt ends or cancel is called.
func (s *AttemptService) Listen(userID string, quizID uuid.UUID) (<-chan AttemptEvent, func(), error) {
	la := s.lookup(liveKey(userID, quizID))
	if la == nil {
		return nil, nil, ErrAttemptNotActive
	}
	ch, cancel := la.listen()
	return ch, cancel, nil
}

// Persist implements attempt.Sink. It stores the attempt, drops the
// autosave buffers and grades the attempt when an answer key exists.
func (s *AttemptService) Persist(ctx context.Context, sub attempt.Submission) (string, error) {
	quizID, err := uuid.Parse(sub.QuizID)
	if err != nil {
		return "", fmt.Errorf("parse quiz id: %w", err)
	}

	a := &model.Attempt{
		QuizID:         quizID,
		UserID:         sub.UserID,
		Answers:        sub.Answers,
		TotalQuestions: sub.TotalQuestions,
		Trigger:        sub.Trigger,
	}
	if err := s.attempts.Create(ctx, a); err != nil {
		return "", fmt.Errorf("create attempt: %w", err)
	}

	if err := s.buffer.Discard(ctx, sub.UserID, sub.QuizID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Discarding autosave failed")
	}

	if s.grader != nil {
		if _, err := s.grader.GradeAttempt(ctx, a.ID); err != nil && !errors.Is(err, ErrNoAnswerKey) {
			s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Grading submitted attempt failed")
		}
	}

	return a.ID.String(), nil
}

// Get retrieves a submitted attempt.
func (s *AttemptService) Get(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// ListByQuiz retrieves every submitted attempt of a quiz.
func (s *AttemptService) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	return s.attempts.ListByQuiz(ctx, quizID)
}

// Shutdown closes every live attempt without submitting it. Autosaved
// answers and start times stay in place, so attempts resume after restart.
func (s *AttemptService) Shutdown() {
	s.mu.Lock()
	live := make([]*liveAttempt, 0, len(s.live))
	for _, la := range s.live {
		live = append(live, la)
	}
	s.mu.Unlock()

	for _, la := range live {
		la.ctrl.Close()
	}
	if len(live) > 0 {
		s.log.Info().Int("count", len(live)).Msg("Live attempts closed")
	}
}

func (s *AttemptService) lookup(key string) *liveAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[key]
}

func (s *AttemptService) hooks(key string, la *liveAttempt, userID, quizID string) attempt.Hooks {
	return attempt.Hooks{
		OnAnswer: func(number int, choice attempt.Choice) {
			ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
			defer cancel()
			if err := s.buffer.Save(ctx, userID, quizID, number, choice); err != nil {
				s.log.Error().Err(err).
					Str("user_id", userID).
					Str("quiz_id", quizID).
					Int("question_number", number).
					Msg("Autosave failed")
			}
		},
		OnTick: func(remaining int) {
			la.broadcast(AttemptEvent{Type: AttemptEventTick, Remaining: remaining})
		},
		OnSubmitted: func(res attempt.Result) {
			la.broadcast(AttemptEvent{Type: AttemptEventSubmitted, Result: &res})
			s.release(key, la)
		},
		OnClosed: func() {
			la.broadcast(AttemptEvent{Type: AttemptEventClosed})
			s.release(key, la)
		},
	}
}

// release evicts la from the registry and ends its listeners and session.
func (s *AttemptService) release(key string, la *liveAttempt) {
	s.mu.Lock()
	if s.live[key] == la {
		delete(s.live, key)
	}
	s.mu.Unlock()

	la.end()
	if err := la.identity.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Closing auth session failed")
	}
}

// liveAttempt is a registered controller with its event listeners.
type liveAttempt struct {
	ctrl     *attempt.Controller
	identity IdentitySession

	mu        sync.Mutex
	listeners map[int]chan AttemptEvent
	nextID    int
	ended     bool
}

func (la *liveAttempt) listen() (<-chan AttemptEvent, func()) {
	la.mu.Lock()
	defer la.mu.Unlock()

	ch := make(chan AttemptEvent, 16)
	if la.ended {
		close(ch)
		return ch, func() {}
	}
	id := la.nextID
	la.nextID++
	la.listeners[id] = ch

	return ch, func() {
		la.mu.Lock()
		defer la.mu.Unlock()
		if c, ok := la.listeners[id]; ok {
			delete(la.listeners, id)
			close(c)
		}
	}
}

// broadcast never blocks; a listener that falls behind misses ticks. A
// terminal event evicts the oldest queued event instead of being dropped.
func (la *liveAttempt) broadcast(ev AttemptEvent) {
	la.mu.Lock()
	defer la.mu.Unlock()
	for _, ch := range la.listeners {
		select {
		case ch <- ev:
			continue
		default:
		}
		if ev.Type == AttemptEventTick {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (la *liveAttempt) end() {
	la.mu.Lock()
	defer la.mu.Unlock()
	la.ended = true
	for id, ch := range la.listeners {
		delete(la.listeners, id)
		close(ch)
	}
}
