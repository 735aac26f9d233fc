package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/grading"
	"github.com/stemsi/paperquiz-backend/internal/model"
)

// ─── Quizzes & questions ────────────────────────────────────────────────────

type fakeQuizStore struct {
	mu      sync.Mutex
	quizzes map[uuid.UUID]*model.Quiz
}

func newFakeQuizStore(quizzes ...*model.Quiz) *fakeQuizStore {
	s := &fakeQuizStore{quizzes: make(map[uuid.UUID]*model.Quiz)}
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
	}
	return s
}

func (s *fakeQuizStore) Create(_ context.Context, q *model.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.ID = uuid.New()
	q.Status = model.QuizStatusProcessing
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	cp := *q
	s.quizzes[q.ID] = &cp
	return nil
}

func (s *fakeQuizStore) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *q
	return &cp, nil
}

func (s *fakeQuizStore) ListByOwner(_ context.Context, ownerID string, page, perPage int) ([]model.Quiz, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Quiz
	for _, q := range s.quizzes {
		if q.OwnerID == ownerID {
			out = append(out, *q)
		}
	}
	return out, len(out), nil
}

func (s *fakeQuizStore) ListTakeable(_ context.Context) ([]model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Quiz
	for _, q := range s.quizzes {
		if q.Takeable() {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (s *fakeQuizStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.QuizStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.quizzes[id]; ok {
		q.Status = status
	}
	return nil
}

func (s *fakeQuizStore) status(id uuid.UUID) model.QuizStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quizzes[id].Status
}

type fakeQuestionStore struct {
	mu        sync.Mutex
	questions map[uuid.UUID][]attempt.Question
	listCalls int
}

func newFakeQuestionStore() *fakeQuestionStore {
	return &fakeQuestionStore{questions: make(map[uuid.UUID][]attempt.Question)}
}

func (s *fakeQuestionStore) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]attempt.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]attempt.Question, len(s.questions[quizID]))
	copy(out, s.questions[quizID])
	return out, nil
}

func (s *fakeQuestionStore) ReplaceAll(_ context.Context, quizID uuid.UUID, questions []attempt.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[quizID] = append([]attempt.Question(nil), questions...)
	return nil
}

func (s *fakeQuestionStore) SetCorrectOptions(_ context.Context, quizID uuid.UUID, key map[int]attempt.Choice) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := 0
	qs := s.questions[quizID]
	for _, q := range qs {
		if _, ok := key[q.Number]; ok {
			matched++
		}
	}
	if matched == 0 {
		return 0, nil
	}
	for i := range qs {
		qs[i].CorrectOption = nil
		if c, ok := key[qs[i].Number]; ok {
			qs[i].CorrectOption = &c
		}
	}
	return matched, nil
}

func (s *fakeQuestionStore) AnswerKey(_ context.Context, quizID uuid.UUID) (map[int]attempt.Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := make(map[int]attempt.Choice)
	for _, q := range s.questions[quizID] {
		if q.CorrectOption != nil {
			key[q.Number] = *q.CorrectOption
		}
	}
	return key, nil
}

type fakeQuizCache struct {
	mu       sync.Mutex
	payloads map[uuid.UUID]*model.QuizPayload
	keys     map[uuid.UUID]map[int]attempt.Choice
}

func newFakeQuizCache() *fakeQuizCache {
	return &fakeQuizCache{
		payloads: make(map[uuid.UUID]*model.QuizPayload),
		keys:     make(map[uuid.UUID]map[int]attempt.Choice),
	}
}

func (c *fakeQuizCache) GetPayload(_ context.Context, quizID uuid.UUID) (*model.QuizPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.payloads[quizID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return p, nil
}

func (c *fakeQuizCache) GetAnswerKey(_ context.Context, quizID uuid.UUID) (map[int]attempt.Choice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.keys[quizID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return k, nil
}

func (c *fakeQuizCache) Store(_ context.Context, payload *model.QuizPayload, key map[int]attempt.Choice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads[payload.QuizID] = payload
	if len(key) > 0 {
		c.keys[payload.QuizID] = key
	} else {
		delete(c.keys, payload.QuizID)
	}
	return nil
}

func (c *fakeQuizCache) Invalidate(_ context.Context, quizID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.payloads, quizID)
	delete(c.keys, quizID)
	return nil
}

type fakeQuizGrader struct {
	mu     sync.Mutex
	calls  []uuid.UUID
	graded int
}

func (g *fakeQuizGrader) GradeQuiz(_ context.Context, quizID uuid.UUID) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, quizID)
	return g.graded, nil
}

// ─── Attempts ───────────────────────────────────────────────────────────────

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
	order    []uuid.UUID
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[uuid.UUID]*model.Attempt)}
}

func (s *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.SubmittedAt = time.Now()
	cp := *a
	s.attempts[a.ID] = &cp
	s.order = append(s.order, a.ID)
	return nil
}

func (s *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Attempt{}
	for _, id := range s.order {
		if a := s.attempts[id]; a.QuizID == quizID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) ListUngraded(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	all, _ := s.ListByQuiz(ctx, quizID)
	out := []model.Attempt{}
	for _, a := range all {
		if !a.IsGraded {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) all() []model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Attempt, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.attempts[id])
	}
	return out
}

type fakeScoreQueue struct {
	mu      sync.Mutex
	updates []model.ScoreUpdate
}

func (q *fakeScoreQueue) EnqueueScore(_ context.Context, u model.ScoreUpdate) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updates = append(q.updates, u)
	return nil
}

type fakeAttemptGrader struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (g *fakeAttemptGrader) GradeAttempt(_ context.Context, id uuid.UUID) (*grading.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, id)
	if g.err != nil {
		return nil, g.err
	}
	return &grading.Result{}, nil
}

func (g *fakeAttemptGrader) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type savedAnswer struct {
	number int
	choice attempt.Choice
}

type fakeAnswerBuffer struct {
	mu        sync.Mutex
	answers   map[int]attempt.Choice
	startedAt time.Time
	saved     []savedAnswer
	discarded int
	marked    int
}

func (b *fakeAnswerBuffer) Save(_ context.Context, _, _ string, number int, choice attempt.Choice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, savedAnswer{number, choice})
	return nil
}

func (b *fakeAnswerBuffer) Restore(context.Context, string, string) (map[int]attempt.Choice, time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int]attempt.Choice, len(b.answers))
	for k, v := range b.answers {
		out[k] = v
	}
	return out, b.startedAt, nil
}

func (b *fakeAnswerBuffer) MarkStarted(_ context.Context, _, _ string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marked++
	if b.startedAt.IsZero() {
		b.startedAt = at
	}
	return nil
}

func (b *fakeAnswerBuffer) Discard(context.Context, string, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discarded++
	b.answers = nil
	b.startedAt = time.Time{}
	return nil
}

func (b *fakeAnswerBuffer) savedAnswers() []savedAnswer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]savedAnswer(nil), b.saved...)
}

type fakeDraftStore struct {
	drafts map[int]attempt.Choice
}

func (d *fakeDraftStore) ListByAttempt(context.Context, uuid.UUID, string) (map[int]attempt.Choice, error) {
	return d.drafts, nil
}

// ─── Identity ───────────────────────────────────────────────────────────────

type fakeIdentities struct {
	mu       sync.Mutex
	sessions []*AuthSession
	closed   int
}

func (f *fakeIdentities) OpenSession(_ context.Context, userID string) (IdentitySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := newAuthSession(userID)
	sess.closer = func() error {
		f.mu.Lock()
		f.closed++
		f.mu.Unlock()
		return nil
	}
	f.sessions = append(f.sessions, sess)
	return sess, nil
}

func (f *fakeIdentities) signOutAll() {
	f.mu.Lock()
	sessions := append([]*AuthSession(nil), f.sessions...)
	f.mu.Unlock()
	for _, s := range sessions {
		s.notify(false)
	}
}

func (f *fakeIdentities) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// ─── Ticker ─────────────────────────────────────────────────────────────────

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}
